// Package lineframe implements the CR-LF-terminated decoder used in
// spec.md's worked end-to-end scenarios: a message is any run of bytes up
// to and including a "\r\n" delimiter.
package lineframe

import (
	"bytes"
	"time"

	"github.com/palchukovsky/gatewayclient/internal/decoder"
)

// Handler receives each complete message's payload (without the trailing
// CRLF) along with the measurement token for the read it arrived in.
type Handler func(payload []byte, m decoder.Measurement)

// Decoder finds CR-LF-delimited messages. Zero value is unusable; build one
// with New.
type Decoder struct {
	onMessage Handler
}

// New builds a line-framed decoder that invokes onMessage for every
// complete message extracted from a read.
func New(onMessage Handler) *Decoder {
	return &Decoder{onMessage: onMessage}
}

const delim = "\r\n"

// FindLastMessageLastByte scans for the last occurrence of "\r\n" that ends
// in the newly transferred bytes and returns the index of its final byte
// ('\n'). The scan starts one byte before transferBegin (never before
// bufferBegin), so a delimiter that straddles a read boundary (its '\r'
// carried over from the previous read, its '\n' the very first byte of the
// new one) is still found. The rest of the carried-over prefix holds no
// complete delimiter, so it is not rescanned.
func (d *Decoder) FindLastMessageLastByte(buf []byte, bufferBegin, transferBegin, transferEnd int) (int, error) {
	start := transferBegin - (len(delim) - 1)
	if start < bufferBegin {
		start = bufferBegin
	}
	idx := bytes.LastIndex(buf[start:transferEnd], []byte(delim))
	if idx < 0 {
		return transferEnd, nil
	}
	return start + idx + len(delim) - 1, nil
}

// HandleNewMessages splits buf[begin:lastByteInclusive+1] on CR-LF and
// invokes onMessage once per complete message, in wire order.
func (d *Decoder) HandleNewMessages(_ time.Time, buf []byte, begin, lastByteInclusive int, m decoder.Measurement) error {
	region := buf[begin : lastByteInclusive+1]
	for len(region) > 0 {
		idx := bytes.Index(region, []byte(delim))
		if idx < 0 {
			break
		}
		d.onMessage(region[:idx], m)
		region = region[idx+len(delim):]
	}
	return nil
}

// OnStart is a no-op for this decoder.
func (d *Decoder) OnStart() error { return nil }

// OnStop is a no-op for this decoder.
func (d *Decoder) OnStop() {}

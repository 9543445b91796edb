// Package wsframe is a Decoder variant that frames RFC 6455 WebSocket
// frames directly out of the Stream Client's byte buffer, instead of
// relying on gobwas/ws/wsutil's io.Reader-based helpers (those assume they
// own the read loop; this port's read loop is owned by streamclient). It
// reuses gobwas/ws for the opcode enum and the frame-masking cipher, the
// same library the teacher's WebSocket read/write pumps use.
package wsframe

import (
	"encoding/binary"
	"time"

	"github.com/gobwas/ws"

	"github.com/palchukovsky/gatewayclient/internal/decoder"
)

// Handler receives one reassembled application message (a run of
// continuation frames collapsed to their Fin frame). Control frames
// (ping/pong/close) are reported too, with their own opcode and a payload
// that is never fragmented per RFC 6455.
type Handler func(op ws.OpCode, payload []byte, m decoder.Measurement)

// Decoder frames WebSocket messages. Not safe for concurrent use with
// itself; the Stream Client only ever calls it while holding its buffer
// lock, which is sufficient.
type Decoder struct {
	onMessage Handler

	fragmenting bool
	fragOp      ws.OpCode
	fragPayload []byte
}

// New builds a Decoder that reports reassembled messages to onMessage.
func New(onMessage Handler) *Decoder {
	return &Decoder{onMessage: onMessage}
}

func (d *Decoder) OnStart() error { return nil }
func (d *Decoder) OnStop()        {}

// frame describes one parsed RFC 6455 frame header located at some offset;
// headerLen+payloadLen is the full length of the frame on the wire.
type frame struct {
	fin        bool
	op         ws.OpCode
	masked     bool
	mask       [4]byte
	headerLen  int
	payloadLen int64
}

// parseFrame parses a frame header starting at buf[0]. ok is false when
// fewer bytes are buffered than the header (plus any extended length
// field and mask key) requires — the caller should stop scanning, not
// treat this as malformed.
func parseFrame(buf []byte) (f frame, ok bool) {
	if len(buf) < 2 {
		return frame{}, false
	}
	b0, b1 := buf[0], buf[1]
	f.fin = b0&0x80 != 0
	f.op = ws.OpCode(b0 & 0x0f)
	f.masked = b1&0x80 != 0
	length := int64(b1 & 0x7f)
	headerLen := 2

	switch length {
	case 126:
		if len(buf) < 4 {
			return frame{}, false
		}
		length = int64(binary.BigEndian.Uint16(buf[2:4]))
		headerLen = 4
	case 127:
		if len(buf) < 10 {
			return frame{}, false
		}
		length = int64(binary.BigEndian.Uint64(buf[2:10]))
		headerLen = 10
	}

	if f.masked {
		if len(buf) < headerLen+4 {
			return frame{}, false
		}
		copy(f.mask[:], buf[headerLen:headerLen+4])
		headerLen += 4
	}

	if int64(len(buf)-headerLen) < length {
		return frame{}, false
	}

	f.headerLen = headerLen
	f.payloadLen = length
	return f, true
}

// FindLastMessageLastByte walks complete frames from bufferBegin, stopping
// at the first one that isn't fully buffered yet.
func (d *Decoder) FindLastMessageLastByte(buf []byte, bufferBegin, _, transferEnd int) (int, error) {
	cursor := bufferBegin
	lastComplete := bufferBegin - 1
	for cursor < transferEnd {
		f, ok := parseFrame(buf[cursor:transferEnd])
		if !ok {
			break
		}
		frameEnd := cursor + f.headerLen + int(f.payloadLen)
		if frameEnd > transferEnd {
			break
		}
		lastComplete = frameEnd - 1
		cursor = frameEnd
	}
	if lastComplete < bufferBegin {
		return transferEnd, nil
	}
	return lastComplete, nil
}

// HandleNewMessages re-walks [begin, lastByteInclusive], unmasking each
// frame's payload in place and reassembling continuation runs before
// calling onMessage.
func (d *Decoder) HandleNewMessages(_ time.Time, buf []byte, begin, lastByteInclusive int, m decoder.Measurement) error {
	end := lastByteInclusive + 1
	cursor := begin
	for cursor < end {
		f, ok := parseFrame(buf[cursor:end])
		if !ok {
			return &decoder.ProtocolError{
				Message: "wsframe: truncated frame header in a range FindLastMessageLastByte reported complete",
				Offset:  cursor,
			}
		}
		payloadStart := cursor + f.headerLen
		payloadEnd := payloadStart + int(f.payloadLen)
		payload := buf[payloadStart:payloadEnd]
		if f.masked {
			ws.Cipher(payload, f.mask, 0)
		}

		switch f.op {
		case ws.OpContinuation:
			d.fragPayload = append(d.fragPayload, payload...)
			if f.fin {
				d.onMessage(d.fragOp, d.fragPayload, m)
				d.fragmenting = false
				d.fragPayload = nil
			}
		case ws.OpText, ws.OpBinary:
			if !f.fin {
				d.fragmenting = true
				d.fragOp = f.op
				d.fragPayload = append([]byte(nil), payload...)
				break
			}
			d.onMessage(f.op, payload, m)
		default: // ping, pong, close: never fragmented per RFC 6455
			d.onMessage(f.op, payload, m)
		}

		cursor = payloadEnd
	}
	return nil
}

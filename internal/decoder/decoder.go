// Package decoder defines the capability a Stream Client calls into to
// locate message boundaries in a byte stream and to consume completed
// messages. Decoders are supplied by the broker-gateway-specific layer
// (FIX, REST/WebSocket handlers, ...); this package only pins the contract.
package decoder

import "time"

// Measurement is the opaque per-read-completion timestamp token created the
// instant a read completes, so that a decoder's latency accounting
// references wire-arrival rather than some later point. It carries no
// public fields — decoders call Started to read it back.
type Measurement struct {
	started time.Time
}

// NewMeasurement snapshots the current time as the origin of a read
// completion's latency measurement.
func NewMeasurement(now time.Time) Measurement {
	return Measurement{started: now}
}

// Started returns the wall-clock instant the read completion fired.
func (m Measurement) Started() time.Time { return m.started }

// ProtocolError is raised by a Decoder when the byte stream violates the
// wire format it expects. The Client dumps a hex view of the active buffer
// around Offset and terminates the connection.
type ProtocolError struct {
	Message  string
	// Offset is the index, within the buffer range passed to
	// FindLastMessageLastByte/HandleNewMessages, of the offending byte.
	Offset int
	// Expected is the byte value the decoder expected at Offset.
	Expected byte
}

func (e *ProtocolError) Error() string { return e.Message }

// Decoder is the capability set a Stream Client depends on. Implementations
// must be safe to call find/handle concurrently with each other only under
// the Client's buffer lock (the Client guarantees this serialization); they
// must not be called concurrently with themselves.
type Decoder interface {
	// FindLastMessageLastByte returns the index, within
	// [transferBegin, transferEnd], of the last byte of the last complete
	// message found in buf[transferBegin:transferEnd]. Returning
	// transferEnd means "no complete message present in this read". Must
	// run in O(transferEnd-transferBegin) and must not mutate decoder
	// state (state mutation is HandleNewMessages' job).
	//
	// bufferBegin is always 0 for a single contiguous buffer; it is
	// threaded through so a decoder can express its own logic in terms of
	// absolute buffer offsets if that is more natural for it.
	FindLastMessageLastByte(buf []byte, bufferBegin, transferBegin, transferEnd int) (int, error)

	// HandleNewMessages is invoked at most once per completed read, only
	// when at least one complete message is present. begin is always 0 in
	// this port (bufferBegin); lastByteInclusive is the index returned by
	// FindLastMessageLastByte for this read.
	HandleNewMessages(now time.Time, buf []byte, begin, lastByteInclusive int, m Measurement) error

	// OnStart fires once, from Client.Start, before the first read is
	// armed.
	OnStart() error

	// OnStop fires once, from Client.Stop, after the transport has been
	// shut down.
	OnStop()
}

// VerboseStat is a byte count rendered in whichever unit (B/KiB/MiB/GiB)
// keeps the mantissa readable, matching the original's
// GetReceivedVerbouseStat. See SPEC_FULL.md "Supplemented features" #1.
type VerboseStat struct {
	Value float64
	Unit  string
}

// Verbose renders a received-byte count the way disconnect/growth log
// lines report it.
func Verbose(bytes int64) VerboseStat {
	const (
		kib = 1024
		mib = kib * 1024
		gib = mib * 1024
	)
	switch {
	case bytes < kib:
		return VerboseStat{Value: float64(bytes), Unit: "B"}
	case bytes < mib:
		return VerboseStat{Value: float64(bytes) / kib, Unit: "KiB"}
	case bytes < gib:
		return VerboseStat{Value: float64(bytes) / mib, Unit: "MiB"}
	default:
		return VerboseStat{Value: float64(bytes) / gib, Unit: "GiB"}
	}
}

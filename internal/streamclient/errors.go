package streamclient

import (
	"fmt"

	"github.com/palchukovsky/gatewayclient/internal/decoder"
)

// The error kinds below mirror spec.md §7's taxonomy (connect,
// communication, timeout, protocol, overflow, caller-misuse, fatal). Each
// wraps the underlying cause so callers can still errors.As/Is through to
// it.

// ConnectError reports a failure to establish the transport connection.
type ConnectError struct{ Err error }

func (e *ConnectError) Error() string { return fmt.Sprintf("connect: %v", e.Err) }
func (e *ConnectError) Unwrap() error  { return e.Err }

// CommunicationError reports a failure on an already-open transport (reset,
// broken pipe, unexpected EOF).
type CommunicationError struct{ Err error }

func (e *CommunicationError) Error() string { return fmt.Sprintf("communication: %v", e.Err) }
func (e *CommunicationError) Unwrap() error  { return e.Err }

// TimeoutError reports a recv/send deadline expiry.
type TimeoutError struct{ Err error }

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }
func (e *TimeoutError) Unwrap() error  { return e.Err }

// ProtocolError reports a decoder-detected framing violation. Wraps a
// decoder.ProtocolError (or, absent that detail, a plain error).
type ProtocolError struct{ Err error }

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %v", e.Err) }
func (e *ProtocolError) Unwrap() error  { return e.Err }

// OverflowError reports that the buffer pair could not grow enough to hold
// an in-progress message.
type OverflowError struct{ Err error }

func (e *OverflowError) Error() string { return fmt.Sprintf("overflow: %v", e.Err) }
func (e *OverflowError) Unwrap() error  { return e.Err }

// CallerError reports caller misuse: a synchronous call issued after the
// client was started, InvokeClient with no active client, and similar.
type CallerError struct{ Msg string }

func (e *CallerError) Error() string { return e.Msg }

// FatalError reports a panic recovered from a reactor handler — the
// equivalent of an exception escaping io_service::run() in the original.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error  { return e.Err }

// hexDump renders buf[begin:end] as spec.md §8's bracketed hex dump, with
// the byte at offendingOffset wrapped in angle brackets, e.g.
// "[ 01 02 03 04 05 <06> 07 08 09 0a 0b 0c ]".
func hexDump(buf []byte, begin, end, offendingOffset int) string {
	out := "[ "
	for i := begin; i < end; i++ {
		if i == offendingOffset {
			out += fmt.Sprintf("<%02x> ", buf[i])
		} else {
			out += fmt.Sprintf("%02x ", buf[i])
		}
	}
	return out + "]"
}

// describeProtocolError renders a decoder protocol error the way spec.md §8
// shows it: the hex dump followed by "Expected byte: 0xNN." when the
// decoder supplied one.
func describeProtocolError(buf []byte, begin, end int, err error) string {
	var pe *decoder.ProtocolError
	if perr, ok := err.(*decoder.ProtocolError); ok {
		pe = perr
	}
	if pe == nil {
		return fmt.Sprintf("protocol error: %v", err)
	}
	dump := hexDump(buf, begin, end, pe.Offset)
	return fmt.Sprintf("%s %s Expected byte: 0x%02x.", pe.Message, dump, pe.Expected)
}

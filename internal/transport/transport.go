package transport

import (
	"fmt"
	"net"
	"time"
)

// Direction names which half of a full-duplex connection Shutdown closes.
type Direction int

const (
	ShutdownRead Direction = iota
	ShutdownWrite
	ShutdownBoth
)

// ReadCompletion reports the outcome of an AsyncRead: n bytes were copied
// into the destination slice passed to AsyncRead, or err is non-nil (io.EOF
// included — a graceful close is not an error kind at this layer; the
// Client interprets n==0, err==nil as closed).
type ReadCompletion func(n int, err error)

// WriteCompletion reports the outcome of an AsyncWrite. Success means every
// byte in the source was accepted by the kernel.
type WriteCompletion func(err error)

// Options configures socket-level behavior applied uniformly across the
// plain and TLS variants, per spec.md §4.B.
type Options struct {
	RecvTimeout time.Duration
	SendTimeout time.Duration
}

// DefaultOptions matches spec.md's default 15s recv/send timeouts.
func DefaultOptions() Options {
	return Options{RecvTimeout: 15 * time.Second, SendTimeout: 15 * time.Second}
}

// Transport is the uniform surface the Stream Client drives over either a
// plain TCP socket or a TLS-wrapped one. All async methods post their
// completion onto the Reactor supplied at construction; sync methods block
// the calling goroutine and are only valid before the async read loop has
// been armed (pre-handshake exchanges), per spec.md §4.D.
type Transport interface {
	// Connect performs synchronous DNS resolution followed by iterative
	// connect, applying socket options (SO_RCVTIMEO/SO_SNDTIMEO analogues,
	// TCP_NODELAY) once open. For the TLS variant it also performs the
	// client-mode handshake synchronously before returning.
	Connect(host string, port int) error

	// AsyncRead schedules a single read that completes when at least one
	// byte has been delivered (or on error/EOF). Only one AsyncRead may be
	// outstanding at a time.
	AsyncRead(dst []byte, completion ReadCompletion)

	// AsyncWrite writes src in full; completion fires once every byte has
	// been accepted by the kernel or an error occurs.
	AsyncWrite(src []byte, completion WriteCompletion)

	// SyncRead blocks for at least one byte.
	SyncRead(dst []byte) (int, error)

	// SyncWrite blocks until src is fully written.
	SyncWrite(src []byte) (int, error)

	// Shutdown closes the named half (or both) of the connection without
	// releasing OS resources; Close releases them. Both are idempotent.
	Shutdown(dir Direction) error
	Close() error

	// IsOpen reports whether Close has been called yet.
	IsOpen() bool

	// NativeHandle exposes the underlying net.Conn, mirroring the
	// original's GetNativeHandle (used for socket-option tuning callers
	// outside this package may need).
	NativeHandle() net.Conn
}

// Factory builds a Transport bound to a Reactor, matching spec.md's
// "factory: create_transport(reactor, secure) -> transport" downward hook.
type Factory func(reactor *Reactor, secure bool, opts Options) Transport

func applySocketOptions(conn net.Conn, opts Options, logf func(string, ...any)) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		logf("failed to set TCP_NODELAY: %v", err)
	}
	// Go's net.Conn has no persistent SO_RCVTIMEO/SO_SNDTIMEO; the
	// equivalent is a deadline re-applied before each blocking operation,
	// which AsyncRead/AsyncWrite/SyncRead/SyncWrite do below.
	_ = opts
}

func directionErrorf(dir Direction, err error) error {
	var name string
	switch dir {
	case ShutdownRead:
		name = "read"
	case ShutdownWrite:
		name = "write"
	default:
		name = "both"
	}
	return fmt.Errorf("shutdown(%s): %w", name, err)
}

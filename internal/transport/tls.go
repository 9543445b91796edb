package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// tlsTransport wraps the same connect/read/write surface as tcpTransport
// around a crypto/tls.Conn. Peer verification is disabled: per spec.md
// §4.B, the application layer performs its own credential checks (e.g. via
// internal/auth), not the transport.
type tlsTransport struct {
	reactor *Reactor
	opts    Options
	logf    func(string, ...any)

	mu     sync.Mutex
	raw    net.Conn
	conn   *tls.Conn
	closed int32
}

// NewTLS builds a TLS-over-TCP Transport bound to reactor.
func NewTLS(reactor *Reactor, opts Options, logf func(string, ...any)) Transport {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &tlsTransport{reactor: reactor, opts: opts, logf: logf}
}

func (t *tlsTransport) Connect(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	raw, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	applySocketOptions(raw, t.opts, t.logf)

	conn := tls.Client(raw, &tls.Config{
		ServerName: host,
		// Peer verification is intentionally disabled: the application
		// layer performs its own credential checks (spec.md §4.B).
		InsecureSkipVerify: true,
	})
	if t.opts.SendTimeout > 0 || t.opts.RecvTimeout > 0 {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
	}
	if err := conn.Handshake(); err != nil {
		raw.Close()
		return fmt.Errorf("tls handshake with %s: %w", addr, err)
	}

	t.mu.Lock()
	t.raw, t.conn = raw, conn
	t.mu.Unlock()
	return nil
}

func (t *tlsTransport) conn_() *tls.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *tlsTransport) AsyncRead(dst []byte, completion ReadCompletion) {
	conn := t.conn_()
	go func() {
		if conn == nil {
			t.reactor.Post(func() { completion(0, fmt.Errorf("read on closed transport")) })
			return
		}
		if t.opts.RecvTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(t.opts.RecvTimeout))
		}
		n, err := conn.Read(dst)
		t.reactor.Post(func() { completion(n, err) })
	}()
}

func (t *tlsTransport) AsyncWrite(src []byte, completion WriteCompletion) {
	conn := t.conn_()
	go func() {
		if conn == nil {
			t.reactor.Post(func() { completion(fmt.Errorf("write on closed transport")) })
			return
		}
		if t.opts.SendTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(t.opts.SendTimeout))
		}
		_, err := writeFull(conn, src)
		t.reactor.Post(func() { completion(err) })
	}()
}

func (t *tlsTransport) SyncRead(dst []byte) (int, error) {
	conn := t.conn_()
	if conn == nil {
		return 0, fmt.Errorf("sync read on closed transport")
	}
	if t.opts.RecvTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(t.opts.RecvTimeout))
	}
	return conn.Read(dst)
}

func (t *tlsTransport) SyncWrite(src []byte) (int, error) {
	conn := t.conn_()
	if conn == nil {
		return 0, fmt.Errorf("sync write on closed transport")
	}
	if t.opts.SendTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.opts.SendTimeout))
	}
	return writeFull(conn, src)
}

func (t *tlsTransport) Shutdown(dir Direction) error {
	conn := t.conn_()
	if conn == nil {
		return nil
	}
	// Whatever dir names, this sends a TLS close_notify and closes the write
	// half via tls.Conn.CloseWrite; the read half stays open until Close.
	if err := conn.CloseWrite(); err != nil {
		return directionErrorf(dir, err)
	}
	return nil
}

func (t *tlsTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	conn := t.conn_()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *tlsTransport) IsOpen() bool {
	return atomic.LoadInt32(&t.closed) == 0 && t.conn_() != nil
}

func (t *tlsTransport) NativeHandle() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.raw
}

package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// tcpTransport is the unsecured-socket variant of Transport. Grounded on
// the teacher's internal/shared/server.go dialing pattern and on
// go-server/pkg/websocket/netpoll.go for the socket-option tuning (here
// limited to the portable net.TCPConn.SetNoDelay rather than raw syscalls,
// since this side is a client, not a high-fanout listener).
type tcpTransport struct {
	reactor *Reactor
	opts    Options
	logf    func(string, ...any)

	mu     sync.Mutex
	conn   net.Conn
	closed int32
}

// NewTCP builds a plain-TCP Transport bound to reactor.
func NewTCP(reactor *Reactor, opts Options, logf func(string, ...any)) Transport {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &tcpTransport{reactor: reactor, opts: opts, logf: logf}
}

// NewTCPFromConn adopts an already-established net.Conn, skipping the
// dial step in Connect. Used by callers that perform their own handshake
// in front of this transport (e.g. an HTTP Upgrade) before handing the raw
// socket over to the Stream Client's read loop.
func NewTCPFromConn(reactor *Reactor, opts Options, logf func(string, ...any), conn net.Conn) Transport {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	applySocketOptions(conn, opts, logf)
	return &tcpTransport{reactor: reactor, opts: opts, logf: logf, conn: conn}
}

func (t *tcpTransport) Connect(host string, port int) error {
	if t.conn_() != nil {
		// Already adopted a pre-established connection via
		// NewTCPFromConn; nothing left to dial.
		return nil
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	applySocketOptions(conn, t.opts, t.logf)
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *tcpTransport) conn_() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *tcpTransport) AsyncRead(dst []byte, completion ReadCompletion) {
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

func (t *tcpTransport) AsyncWrite(src []byte, completion WriteCompletion) {
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

func writeFull(conn net.Conn, src []byte) (int, error) {
	total := 0
	for total < len(src) {
		n, err := conn.Write(src[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (t *tcpTransport) SyncRead(dst []byte) (int, error) {
	conn := t.conn_()
	if conn == nil {
		return 0, fmt.Errorf("sync read on closed transport")
	}
	if t.opts.RecvTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(t.opts.RecvTimeout))
	}
	return conn.Read(dst)
}

func (t *tcpTransport) SyncWrite(src []byte) (int, error) {
	conn := t.conn_()
	if conn == nil {
		return 0, fmt.Errorf("sync write on closed transport")
	}
	if t.opts.SendTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.opts.SendTimeout))
	}
	return writeFull(conn, src)
}

func (t *tcpTransport) Shutdown(dir Direction) error {
	conn := t.conn_()
	if conn == nil {
		return nil
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	var err error
	switch dir {
	case ShutdownRead:
		err = tcpConn.CloseRead()
	case ShutdownWrite:
		err = tcpConn.CloseWrite()
	default:
		if err = tcpConn.CloseRead(); err == nil {
			err = tcpConn.CloseWrite()
		}
	}
	if err != nil {
		return directionErrorf(dir, err)
	}
	return nil
}

func (t *tcpTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	conn := t.conn_()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *tcpTransport) IsOpen() bool {
	return atomic.LoadInt32(&t.closed) == 0 && t.conn_() != nil
}

func (t *tcpTransport) NativeHandle() net.Conn { return t.conn_() }

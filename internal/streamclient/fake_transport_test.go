package streamclient

import (
	"net"
	"sync"

	"github.com/palchukovsky/gatewayclient/internal/transport"
)

// fakeTransport is a scriptable transport.Transport double: AsyncRead
// delivers chunks from a pre-loaded queue one at a time, and AsyncWrite
// records what was written. Completions fire on a freshly spawned goroutine,
// matching tcpTransport's contract (a completion must never run nested
// inside the call that armed it, since the Client's read-completion handler
// holds its buffer lock across the call that arms the next read).
type fakeTransport struct {
	mu     sync.Mutex
	chunks [][]byte
	reads  int
	writes [][]byte
	open   bool

	// hang, when true, makes a read past the end of the script block
	// forever instead of completing with a graceful close — standing in
	// for an idle, still-open connection with nothing queued to deliver.
	hang bool

	writeErr error
}

func newFakeTransport(chunks ...[]byte) *fakeTransport {
	return &fakeTransport{chunks: chunks, open: true}
}

func newHangingTransport(chunks ...[]byte) *fakeTransport {
	return &fakeTransport{chunks: chunks, open: true, hang: true}
}

func (f *fakeTransport) Connect(string, int) error { return nil }

// AsyncRead delivers at most one scripted chunk per call, truncated to
// len(dst) the way a real socket read would be — any remainder stays queued
// as the new head of the chunk list rather than being discarded, so a
// caller-supplied buffer smaller than a chunk still sees every byte, just
// split across more reads than the script named.
func (f *fakeTransport) AsyncRead(dst []byte, completion transport.ReadCompletion) {
	f.mu.Lock()
	if f.reads >= len(f.chunks) {
		hang := f.hang
		f.mu.Unlock()
		if hang {
			return // never completes; simulates an idle open connection
		}
		go completion(0, nil) // graceful close once the script runs dry
		return
	}
	chunk := f.chunks[f.reads]
	n := copy(dst, chunk)
	if n < len(chunk) {
		f.chunks[f.reads] = chunk[n:]
	} else {
		f.reads++
	}
	f.mu.Unlock()
	go completion(n, nil)
}

func (f *fakeTransport) AsyncWrite(src []byte, completion transport.WriteCompletion) {
	f.mu.Lock()
	cp := append([]byte(nil), src...)
	f.writes = append(f.writes, cp)
	err := f.writeErr
	f.mu.Unlock()
	go completion(err)
}

func (f *fakeTransport) SyncRead(dst []byte) (int, error)  { return 0, nil }
func (f *fakeTransport) SyncWrite(src []byte) (int, error) { return len(src), nil }

func (f *fakeTransport) Shutdown(transport.Direction) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) NativeHandle() net.Conn { return nil }

func (f *fakeTransport) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func fakeFactory(tr *fakeTransport) transport.Factory {
	return func(_ *transport.Reactor, _ bool, _ transport.Options) transport.Transport {
		return tr
	}
}

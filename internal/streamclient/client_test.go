package streamclient

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palchukovsky/gatewayclient/internal/decoder"
	"github.com/palchukovsky/gatewayclient/internal/decoder/lineframe"
)

const testWaitFor = 2 * time.Second
const testTick = time.Millisecond

func testConfig() Config {
	return DebugConfig("127.0.0.1", 9999)
}

func testService() *Service {
	return NewService(testConfig(), zerolog.Nop(), nil)
}

func newTestClient(t *testing.T, tr *fakeTransport, onMessage lineframe.Handler) *Client {
	t.Helper()
	svc := testService()
	c, err := NewClient(svc, testConfig(), fakeFactory(tr), lineframe.New(onMessage))
	require.NoError(t, err)
	return c
}

// messageRecorder collects decoded payloads under a lock, since onMessage
// fires from whatever goroutine the fake transport's completion lands on.
type messageRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *messageRecorder) record(payload []byte, _ decoder.Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(payload))
}

func (r *messageRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *messageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestClientDeliversCompleteLineOnFirstRead(t *testing.T) {
	tr := newFakeTransport([]byte("hello\r\n"))
	rec := &messageRecorder{}
	c := newTestClient(t, tr, rec.record)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return rec.count() >= 1 }, testWaitFor, testTick)
	assert.Equal(t, []string{"hello"}, rec.snapshot())
}

func TestClientCarriesPartialMessageAcrossReads(t *testing.T) {
	tr := newFakeTransport([]byte("hel"), []byte("lo\r\n"))
	rec := &messageRecorder{}
	c := newTestClient(t, tr, rec.record)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return rec.count() >= 1 }, testWaitFor, testTick)
	assert.Equal(t, []string{"hello"}, rec.snapshot())
}

// TestClientCarriesDelimiterSplitAcrossReads covers a "\r\n" delimiter
// whose two bytes land in different reads: the first read's carried-over
// tail ends in '\r', the second read's first byte is '\n', and that '\n'
// is not itself followed by any further delimiter. A decoder that only
// rescans the newly transferred bytes never sees the two halves of the
// delimiter together and reports the already-complete message as still
// incomplete.
func TestClientCarriesDelimiterSplitAcrossReads(t *testing.T) {
	tr := newFakeTransport([]byte("hello\r"), []byte("\n"))
	rec := &messageRecorder{}
	c := newTestClient(t, tr, rec.record)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return rec.count() >= 1 }, testWaitFor, testTick)
	assert.Equal(t, []string{"hello"}, rec.snapshot())
}

func TestClientDeliversMultipleMessagesInOneRead(t *testing.T) {
	tr := newFakeTransport([]byte("one\r\ntwo\r\nthr"), []byte("ee\r\n"))
	rec := &messageRecorder{}
	c := newTestClient(t, tr, rec.record)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return rec.count() >= 3 }, testWaitFor, testTick)
	assert.Equal(t, []string{"one", "two", "three"}, rec.snapshot())
}

func TestClientGrowsBufferWhenNoDelimiterFits(t *testing.T) {
	// DebugConfig starts at streambuf.DebugInitialCapacity (256 bytes); feed
	// it an in-progress message longer than that with no CRLF anywhere, then
	// close it out. The growth path must kick in rather than the read loop
	// wedging against a full buffer.
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	tr := newFakeTransport(long, []byte("\r\n"))
	rec := &messageRecorder{}
	c := newTestClient(t, tr, rec.record)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return rec.count() >= 1 }, testWaitFor, testTick)
	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, 300, len(got[0]))

	unlock := c.LockDataExchange()
	capacity := c.pair.Active().Cap()
	unlock()
	assert.Greater(t, capacity, 256, "buffer should have grown past its initial capacity")
}

func TestClientOverflowDisconnectsWhenCeilingExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBufferBytes = 256 // equal to the debug initial capacity: growth is impossible
	long := make([]byte, 300)
	tr := newFakeTransport(long)
	svc := testService()
	rec := &messageRecorder{}
	c, err := NewClient(svc, cfg, fakeFactory(tr), lineframe.New(rec.record))
	require.NoError(t, err)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return !tr.IsOpen() }, testWaitFor, testTick, "overflow must close the transport")
	assert.Empty(t, rec.snapshot())
}

type protocolErrorDecoder struct{}

func (protocolErrorDecoder) FindLastMessageLastByte(buf []byte, _, _, _ int) (int, error) {
	return 0, &decoder.ProtocolError{Message: "bad byte", Offset: 0, Expected: 0xAA}
}

func (protocolErrorDecoder) HandleNewMessages(_ time.Time, _ []byte, _, _ int, _ decoder.Measurement) error {
	return nil
}
func (protocolErrorDecoder) OnStart() error { return nil }
func (protocolErrorDecoder) OnStop()        {}

func TestClientDisconnectsOnProtocolError(t *testing.T) {
	tr := newFakeTransport([]byte("anything"))
	svc := testService()
	c, err := NewClient(svc, testConfig(), fakeFactory(tr), protocolErrorDecoder{})
	require.NoError(t, err)

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return !tr.IsOpen() }, testWaitFor, testTick, "protocol error must close the transport")
}

func TestClientSendOrdersWritesAndInvokesCallbacks(t *testing.T) {
	tr := newFakeTransport([]byte("\r\n"))
	c := newTestClient(t, tr, func([]byte, decoder.Measurement) {})
	require.NoError(t, c.Start())

	const n = 5
	var completed int32
	for i := 0; i < n; i++ {
		require.NoError(t, c.enqueue([]byte{byte(i)}, func() { atomic.AddInt32(&completed, 1) }))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&completed) == n
	}, testWaitFor, testTick, "all write completions must fire")

	frames := tr.writtenFrames()
	require.Len(t, frames, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), frames[i][0], "writes must be dispatched in submission order")
	}
}

func TestClientSynchronousHelpersRejectedAfterStart(t *testing.T) {
	tr := newFakeTransport([]byte("\r\n"))
	c := newTestClient(t, tr, func([]byte, decoder.Measurement) {})
	require.NoError(t, c.Start())

	err := c.SendSynchronously([]byte("ping"), "test")
	var callerErr *CallerError
	require.ErrorAs(t, err, &callerErr)
}

func TestClientSendAfterStopReturnsCallerError(t *testing.T) {
	tr := newFakeTransport() // graceful close on the very first read
	c := newTestClient(t, tr, func([]byte, decoder.Measurement) {})
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return !tr.IsOpen() }, testWaitFor, testTick)

	err := c.Send([]byte("late"))
	var callerErr *CallerError
	require.ErrorAs(t, err, &callerErr)
}

func TestHexDumpBracketsOffendingByte(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x06, 0x07}
	got := hexDump(buf, 0, len(buf), 2)
	assert.Equal(t, "[ 01 02 <06> 07 ]", got)
}

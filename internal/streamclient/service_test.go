package streamclient

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palchukovsky/gatewayclient/internal/decoder"
	"github.com/palchukovsky/gatewayclient/internal/decoder/lineframe"
)

// scriptedFactory hands out one fakeTransport-backed Client per call, in the
// order supplied; a nil entry simulates a dial failure.
type scriptedFactory struct {
	mu    sync.Mutex
	plan  []*fakeTransport
	calls int
}

func (f *scriptedFactory) build(s *Service) (*Client, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if idx >= len(f.plan) {
		return nil, &ConnectError{Err: fmt.Errorf("scriptedFactory: no more planned connects")}
	}
	tr := f.plan[idx]
	if tr == nil {
		return nil, &ConnectError{Err: fmt.Errorf("scriptedFactory: planned dial failure #%d", idx)}
	}
	return NewClient(s, testConfig(), fakeFactory(tr), lineframe.New(func([]byte, decoder.Measurement) {}))
}

func newServiceForTest(t *testing.T, cfg Config, plan ...*fakeTransport) (*Service, *scriptedFactory) {
	t.Helper()
	sf := &scriptedFactory{plan: plan}
	s := NewService(cfg, zerolog.Nop(), sf.build)
	t.Cleanup(s.Stop)
	return s, sf
}

func TestServiceConnectTransitionsToStreaming(t *testing.T) {
	tr := newHangingTransport()
	s, _ := newServiceForTest(t, testConfig(), tr)

	require.NoError(t, s.Connect())
	assert.Equal(t, StateStreaming, s.State())
}

func TestServiceConnectFailurePropagatesError(t *testing.T) {
	cfg := testConfig()
	s, _ := newServiceForTest(t, cfg, nil) // first planned dial fails

	err := s.Connect()
	require.Error(t, err)
	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, StateIdle, s.State())
}

func TestServiceReconnectsImmediatelyWhenPastMinGap(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectMinGap = 0 // any elapsed time clears the back-off check
	first := newFakeTransport()  // empty script: graceful-closes right away
	second := newHangingTransport()
	s, _ := newServiceForTest(t, cfg, first, second)

	var restored int32Counter
	s.OnConnectionRestored = restored.inc

	require.NoError(t, s.Connect())
	require.Eventually(t, func() bool { return restored.get() >= 1 }, 2*time.Second, time.Millisecond,
		"service must reconnect and fire OnConnectionRestored")
	assert.Equal(t, StateStreaming, s.State())
}

func TestServiceBacksOffWhenReconnectingTooSoon(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectMinGap = time.Hour // force the back-off branch
	cfg.ReconnectBackOff = 20 * time.Millisecond
	first := newFakeTransport()
	second := newHangingTransport()
	s, _ := newServiceForTest(t, cfg, first, second)

	require.NoError(t, s.Connect())

	// Immediately after the first disconnect fires, the service must be in
	// the back-off wait, not already streaming again.
	require.Eventually(t, func() bool { return s.State() == StateReconnecting }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return s.State() == StateStreaming }, time.Second, time.Millisecond,
		"back-off must eventually elapse and reconnect")
}

// TestServiceStopDuringBackOffDoesNotPanic guards against the reconnect
// back-off timer firing after Stop has already closed the reactor's task
// queue: that would otherwise be a send on a closed channel, panicking on
// the timer's own goroutine where nothing recovers it.
func TestServiceStopDuringBackOffDoesNotPanic(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectMinGap = time.Hour // force the back-off branch
	cfg.ReconnectBackOff = 10 * time.Millisecond
	first := newFakeTransport()
	s, _ := newServiceForTest(t, cfg, first)

	require.NoError(t, s.Connect())
	require.Eventually(t, func() bool { return s.State() == StateReconnecting }, time.Second, time.Millisecond)

	s.Stop() // must return cleanly even though the back-off timer is pending
	assert.Equal(t, StateIdle, s.State())

	// Give a racing, already-fired timer callback a chance to run; it must
	// not crash the process by posting onto the now-closed reactor queue.
	time.Sleep(3 * cfg.ReconnectBackOff)
}

func TestServiceStopTearsDownClientAndWorkers(t *testing.T) {
	tr := newHangingTransport()
	cfg := testConfig()
	sf := &scriptedFactory{plan: []*fakeTransport{tr}}
	s := NewService(cfg, zerolog.Nop(), sf.build)

	require.NoError(t, s.Connect())
	s.Stop()

	assert.Equal(t, StateIdle, s.State())
	assert.False(t, tr.IsOpen())
}

func TestServiceInvokeClientWithNoActiveConnectionReturnsCallerError(t *testing.T) {
	s := NewService(testConfig(), zerolog.Nop(), nil)
	err := s.InvokeClient(func(*Client) error { return nil })
	var callerErr *CallerError
	require.ErrorAs(t, err, &callerErr)
}

func TestServiceInvokeClientRunsAgainstCurrentClient(t *testing.T) {
	tr := newHangingTransport()
	s, _ := newServiceForTest(t, testConfig(), tr)
	require.NoError(t, s.Connect())

	var sawClient *Client
	err := s.InvokeClient(func(c *Client) error {
		sawClient = c
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, sawClient)
}

func TestServiceFatalErrorInHandlerStopsCurrentClientWithoutReconnect(t *testing.T) {
	tr := newHangingTransport()
	s, _ := newServiceForTest(t, testConfig(), tr)
	require.NoError(t, s.Connect())

	var stoppedMsg string
	var mu sync.Mutex
	s.OnStopByError = func(msg string) {
		mu.Lock()
		stoppedMsg = msg
		mu.Unlock()
	}

	s.reactor.Post(func() { panic("boom") })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stoppedMsg != ""
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return s.State() == StateIdle }, 2*time.Second, time.Millisecond)
}

// int32Counter is a tiny thread-safe counter for callback-fired assertions.
type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

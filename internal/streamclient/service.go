package streamclient

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palchukovsky/gatewayclient/internal/transport"
)

// State names the Service's position in spec.md §4.E's reconnect state
// machine: Idle -> Connecting -> Streaming, Streaming -> Reconnecting ->
// Connecting, Streaming -> Stopping -> Idle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ClientFactory constructs (and dials) a new Client bound to s. Supplied by
// the broker-gateway-specific layer: it knows which decoder and transport
// factory a given endpoint needs.
type ClientFactory func(s *Service) (*Client, error)

// Service is the per-endpoint supervisor: it owns the Reactor, the fixed
// two-worker-goroutine pool that drives it, and the single current Client
// slot, plus the reconnect back-off timer. Grounded on the original
// NetworkStreamClientService::Implementation state machine.
type Service struct {
	cfg           Config
	logger        zerolog.Logger
	reactor       *transport.Reactor
	clientFactory ClientFactory

	nowFunc func() time.Time

	// OnConnectionRestored, if set, fires after a successful (re)connect
	// that follows at least one prior disconnect.
	OnConnectionRestored func()
	// OnStopByError, if set, fires when a reactor handler panics — the
	// fatal-error path. msg carries the recovered panic's text.
	OnStopByError func(msg string)

	mu                 sync.Mutex
	currentClient      *Client
	state              State
	lastConnectAttempt time.Time
	everConnected      bool
	stopping           bool
	reconnectTimer     *time.Timer

	workersStarted bool
	wg             sync.WaitGroup
}

// NewService builds a Service for one endpoint. The worker pool is started
// lazily, on the first successful Connect, matching the original's
// lazy-thread-creation note.
func NewService(cfg Config, logger zerolog.Logger, factory ClientFactory) *Service {
	l := logger.With().Str("component", "stream_client_service").Logger()
	if cfg.LogTag != "" {
		l = l.With().Str("log_tag", cfg.LogTag).Logger()
	}
	return &Service{
		cfg:           cfg,
		logger:        l,
		reactor:       transport.NewReactor(1024),
		clientFactory: factory,
		nowFunc:       time.Now,
		state:         StateIdle,
	}
}

// SetClock overrides the Service's time source; tests use this to drive the
// reconnect back-off timer deterministically.
func (s *Service) SetClock(now func() time.Time) { s.nowFunc = now }

func (s *Service) now() time.Time { return s.nowFunc() }

// State reports the Service's current position in the reconnect state
// machine.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect performs the initial connection attempt. Subsequent reconnects
// after a disconnect are internal and do not go through this entry point.
func (s *Service) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

// connectLocked must be called with s.mu held and always returns with it
// held again; internally it releases and re-acquires the lock around the
// (potentially slow) dial so a concurrent Stop or InvokeClient is never
// blocked behind a hung connect attempt.
func (s *Service) connectLocked() error {
	s.state = StateConnecting
	s.lastConnectAttempt = s.now()
	s.mu.Unlock()
	client, err := s.clientFactory(s)
	s.mu.Lock()

	if s.stopping {
		if client != nil {
			client.Stop()
			client.release()
		}
		s.state = StateIdle
		return &CallerError{Msg: "streamclient: service is stopping"}
	}

	if err != nil {
		s.state = StateIdle
		s.logger.Error().Err(err).Str("host", s.cfg.Host).Int("port", s.cfg.Port).Msg("failed to connect")
		return err
	}

	s.mu.Unlock()
	startErr := client.Start()
	s.mu.Lock()

	if startErr != nil {
		s.state = StateIdle
		client.Stop()
		client.release()
		return startErr
	}

	s.currentClient = client
	s.state = StateStreaming
	s.startWorkersLocked()

	if s.everConnected && s.OnConnectionRestored != nil {
		s.mu.Unlock()
		s.OnConnectionRestored()
		s.mu.Lock()
	}
	s.everConnected = true
	return nil
}

func (s *Service) startWorkersLocked() {
	if s.workersStarted {
		return
	}
	s.workersStarted = true
	const workerCount = 2
	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.runWorker()
	}
}

func (s *Service) runWorker() {
	defer s.wg.Done()
	if err := s.reactor.Run(); err != nil {
		s.logger.Error().Err(err).Msg("fatal error in reactor handler")
		if s.OnStopByError != nil {
			s.OnStopByError(err.Error())
		}
		s.forceStopCurrentClient()
	}
}

// forceStopCurrentClient is the fatal-error path: it tears down whatever
// client is live without scheduling a reconnect, matching the original's
// "an exception escaping run() stops the client on that thread, the other
// threads keep draining the queue until Stop() is called externally."
func (s *Service) forceStopCurrentClient() {
	s.mu.Lock()
	client := s.currentClient
	s.currentClient = nil
	s.state = StateIdle
	s.mu.Unlock()
	if client != nil {
		client.Stop()
		client.release()
	}
}

// onDisconnect is invoked by a Client on its own error path (communication
// error, graceful close, protocol error, overflow). It decides, by
// identity, whether this Client is still the one the Service cares about —
// a Client already replaced by Stop or by a faster-firing duplicate error
// path is a no-op here.
func (s *Service) onDisconnect(c *Client) {
	s.reactor.Post(func() {
		s.mu.Lock()
		if s.currentClient != c {
			s.mu.Unlock()
			return
		}
		s.currentClient = nil
		stopping := s.stopping
		s.mu.Unlock()

		c.release()

		if stopping {
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.state = StateReconnecting
		s.mu.Unlock()
		s.scheduleReconnect()
	})
}

// scheduleReconnect implements spec.md §4.E's back-off: if the previous
// connect attempt was within ReconnectMinGap, wait ReconnectBackOff before
// retrying; otherwise retry immediately (posted onto the reactor rather
// than called inline, so it still runs on a worker goroutine).
func (s *Service) scheduleReconnect() {
	s.mu.Lock()
	elapsed := s.now().Sub(s.lastConnectAttempt)
	s.mu.Unlock()

	if elapsed <= s.cfg.ReconnectMinGap {
		s.logger.Warn().
			Dur("back_off", s.cfg.ReconnectBackOff).
			Msg("reconnecting too soon, backing off")
		s.mu.Lock()
		s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectBackOff, s.postReconnect)
		s.mu.Unlock()
		return
	}
	s.postReconnect()
}

// postReconnect posts the reconnect task to the reactor unless the service
// is stopping or has already closed the reactor's task queue — the timer
// that calls this runs on its own goroutine, outside any Run worker's
// panic recovery, so a send on a queue Stop already closed would crash the
// process instead of just failing this one reconnect attempt.
func (s *Service) postReconnect() {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return
	}
	defer func() { recover() }()
	s.reactor.Post(s.reconnect)
}

func (s *Service) reconnect() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	err := s.connectLocked()
	s.mu.Unlock()
	if err != nil {
		s.logger.Error().Err(err).Msg("reconnect attempt failed")
		s.mu.Lock()
		s.state = StateReconnecting
		s.mu.Unlock()
		s.scheduleReconnect()
	}
}

// InvokeClient runs fn against the current Client while holding the
// Service's lock, so fn observes a Client that cannot be swapped out or
// released mid-call. Returns a CallerError if there is no active
// connection.
func (s *Service) InvokeClient(fn func(*Client) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentClient == nil {
		return &CallerError{Msg: "streamclient: service has no active connection"}
	}
	return fn(s.currentClient)
}

// Stop tears down the current client (if any), without scheduling a
// reconnect, then stops the reactor and joins the worker pool.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopping = true
	client := s.currentClient
	s.currentClient = nil
	s.state = StateStopping
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.mu.Unlock()

	if client != nil {
		client.Stop()
		client.release()
	}

	s.reactor.Stop()
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

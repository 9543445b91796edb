// Package natsfeed publishes decoded Stream Client messages to a NATS
// subject, grounded on the teacher's go-server/pkg/nats/client.go
// connection-event-handler pattern.
package natsfeed

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config configures a Publisher.
type Config struct {
	URL             string
	Subject         string
	MaxReconnects   int
	ReconnectWait   time.Duration
	Logger          zerolog.Logger
}

// Publisher publishes to one NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// New connects to the NATS server at cfg.URL and returns a ready
// Publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("natsfeed: subject is required")
	}

	p := &Publisher{subject: cfg.Subject, logger: cfg.Logger}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ConnectHandler(p.onConnect),
		nats.DisconnectErrHandler(p.onDisconnect),
		nats.ReconnectHandler(p.onReconnect),
		nats.ErrorHandler(p.onAsyncError),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsfeed: connect: %w", err)
	}
	p.conn = conn
	return p, nil
}

func (p *Publisher) onConnect(c *nats.Conn) {
	p.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats connected")
}

func (p *Publisher) onDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		p.logger.Warn().Err(err).Msg("nats disconnected")
	}
}

func (p *Publisher) onReconnect(c *nats.Conn) {
	p.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
}

func (p *Publisher) onAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	p.logger.Error().Err(err).Str("subject", sub.Subject).Msg("nats async error")
}

// Publish fans a decoded message out to the configured subject.
func (p *Publisher) Publish(payload []byte) error {
	return p.conn.Publish(p.subject, payload)
}

// Flush blocks until all buffered publishes have been flushed to the
// server, or the default flush timeout elapses.
func (p *Publisher) Flush() error {
	return p.conn.FlushTimeout(5 * time.Second)
}

// Close closes the connection; it does not drain it first.
func (p *Publisher) Close() {
	p.conn.Close()
}

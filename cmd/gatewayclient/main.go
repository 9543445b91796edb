// Command gatewayclient runs one Stream Client Service against a
// CRLF-delimited line-framed endpoint, printing each decoded message to
// stdout. It is a thin demonstration binary: production callers embed
// internal/streamclient directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	_ "go.uber.org/automaxprocs"

	"github.com/palchukovsky/gatewayclient/internal/auth"
	"github.com/palchukovsky/gatewayclient/internal/config"
	"github.com/palchukovsky/gatewayclient/internal/decoder"
	"github.com/palchukovsky/gatewayclient/internal/decoder/lineframe"
	"github.com/palchukovsky/gatewayclient/internal/feed/kafkafeed"
	"github.com/palchukovsky/gatewayclient/internal/feed/natsfeed"
	"github.com/palchukovsky/gatewayclient/internal/health"
	"github.com/palchukovsky/gatewayclient/internal/logging"
	"github.com/palchukovsky/gatewayclient/internal/metrics"
	"github.com/palchukovsky/gatewayclient/internal/streamclient"
	"github.com/palchukovsky/gatewayclient/internal/throttle"
	"github.com/palchukovsky/gatewayclient/internal/transport"
)

func main() {
	bootLogger := logging.New(logging.Config{Level: logging.LevelInfo, Format: logging.FormatPretty, Service: "gatewayclient"})

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Config{
		Level:   logging.Level(cfg.LogLevel),
		Format:  logging.Format(cfg.LogFormat),
		Service: "gatewayclient",
	})
	cfg.LogFields(logger).Msg("starting gatewayclient")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry, cfg.LogTag)
	go serveMetrics(cfg.MetricsAddr, registry, logger)

	if rep := health.Check(health.Thresholds{MaxCPUPercent: 90, MaxMemoryPercent: 90}); rep.Degraded {
		logger.Warn().Str("reason", rep.Reason).Msg("host is degraded before the first dial")
	}

	var kafkaPub *kafkafeed.Publisher
	if cfg.KafkaBrokers != "" {
		kafkaPub, err = kafkafeed.New(kafkafeed.Config{
			Brokers: splitCSV(cfg.KafkaBrokers),
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("kafka feed disabled: failed to connect")
		} else {
			defer kafkaPub.Close()
		}
	}

	var natsPub *natsfeed.Publisher
	if cfg.NATSURL != "" {
		natsPub, err = natsfeed.New(natsfeed.Config{
			URL:           cfg.NATSURL,
			Subject:       cfg.NATSSubject,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Logger:        logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("nats feed disabled: failed to connect")
		} else {
			defer natsPub.Close()
		}
	}

	var nonces *throttle.NonceStore
	if cfg.NoncePath != "" {
		nonces, err = throttle.NewNonceStore(cfg.NoncePath, 1)
		if err != nil {
			logger.Fatal().Err(err).Msg("refusing to start: nonce store")
		}
	}

	var credentials *auth.Manager
	if cfg.JWTSigningKey != "" {
		credentials = auth.NewManager(cfg.JWTSigningKey, cfg.JWTTTL)
	}

	// signRequest mints the credential and reserves the nonce a REST-sibling
	// request to this endpoint's gateway presents alongside the stream: the
	// nonce is only committed once the credential mints cleanly, so a mint
	// failure never burns a nonce the request never actually sent.
	signRequest := func() (token string, nonce uint64, err error) {
		if credentials == nil || nonces == nil {
			return "", 0, fmt.Errorf("request signing not configured: set GATEWAY_JWT_SIGNING_KEY and GATEWAY_NONCE_PATH")
		}
		tok := nonces.Acquire()
		token, err = credentials.Mint(cfg.AccountID, cfg.APIKeyID)
		if err != nil {
			tok.Release()
			return "", 0, fmt.Errorf("mint credential: %w", err)
		}
		nonce = tok.Value()
		if err := tok.Commit(); err != nil {
			return "", 0, fmt.Errorf("commit nonce: %w", err)
		}
		return token, nonce, nil
	}
	if credentials != nil && nonces != nil {
		if _, _, err := signRequest(); err != nil {
			logger.Warn().Err(err).Msg("could not mint a startup credential")
		} else {
			logger.Info().Msg("REST-sibling request signing is configured")
		}
	}

	onMessage := func(payload []byte, _ decoder.Measurement) {
		line := strings.TrimRight(string(payload), "\r\n")
		fmt.Println(line)
		if kafkaPub != nil {
			kafkaPub.Publish(nil, payload)
		}
		if natsPub != nil {
			if perr := natsPub.Publish(payload); perr != nil {
				logger.Warn().Err(perr).Msg("nats publish failed")
			}
		}
	}

	scConfig := streamclient.DefaultConfig(cfg.Host, cfg.Port)
	scConfig.Secure = cfg.Secure
	scConfig.InitialBufferBytes = cfg.InitialBufferBytes
	scConfig.MaxBufferBytes = cfg.MaxBufferBytes
	scConfig.RecvTimeout = cfg.RecvTimeout
	scConfig.SendTimeout = cfg.SendTimeout
	scConfig.ReconnectMinGap = cfg.ReconnectMinGap
	scConfig.ReconnectBackOff = cfg.ReconnectBackOff
	scConfig.LogTag = cfg.LogTag
	scConfig.PoisonBuffers = cfg.PoisonBuffers

	factory := transport.NewFactory(func(format string, args ...any) {
		logger.Debug().Msgf(format, args...)
	})

	svc := streamclient.NewService(scConfig, logger, func(s *streamclient.Service) (*streamclient.Client, error) {
		dec := lineframe.New(onMessage)
		c, cerr := streamclient.NewClient(s, scConfig, factory, dec)
		if cerr != nil {
			m.ConnectFailed()
		}
		return c, cerr
	})
	svc.OnConnectionRestored = func() {
		m.ReconnectAttempted()
		logger.Info().Msg("connection restored")
	}
	svc.OnStopByError = func(msg string) {
		m.Disconnected("fatal")
		logger.Error().Str("reason", msg).Msg("service stopped by a fatal error")
	}

	if err := svc.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("initial connect failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	svc.Stop()
	if kafkaPub != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), kafkafeed.DefaultFlushTimeout)
		defer cancel()
		_ = kafkaPub.Flush(flushCtx)
	}
	if natsPub != nil {
		_ = natsPub.Flush()
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

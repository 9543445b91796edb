// Command gatewayclient-ws is the WebSocket-trait demonstration binary: it
// performs the HTTP Upgrade handshake with gorilla/websocket, then hands
// the raw, now-upgraded socket to the same streamclient read loop the
// plain-TCP binary uses, framing it with internal/decoder/wsframe instead
// of lineframe.
//
// Known limitation: gorilla/websocket buffers reads internally, so if the
// peer pipelines a WebSocket frame immediately behind the HTTP 101
// response in the same TCP segment, that frame can be stuck in gorilla's
// bufio.Reader and invisible to the raw conn this binary reads next. In
// practice servers do not pipeline like this, but a production port of
// this trait should perform the Upgrade handshake itself rather than
// borrowing gorilla's.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/gobwas/ws"
	"github.com/gorilla/websocket"

	_ "go.uber.org/automaxprocs"

	"github.com/palchukovsky/gatewayclient/internal/config"
	"github.com/palchukovsky/gatewayclient/internal/decoder"
	"github.com/palchukovsky/gatewayclient/internal/decoder/wsframe"
	"github.com/palchukovsky/gatewayclient/internal/logging"
	"github.com/palchukovsky/gatewayclient/internal/streamclient"
	"github.com/palchukovsky/gatewayclient/internal/transport"
)

func main() {
	bootLogger := logging.New(logging.Config{Format: logging.FormatPretty, Service: "gatewayclient-ws"})
	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.New(logging.Config{
		Level:   logging.Level(cfg.LogLevel),
		Format:  logging.Format(cfg.LogFormat),
		Service: "gatewayclient-ws",
	})

	scheme := "ws"
	if cfg.Secure {
		scheme = "wss"
	}
	target := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}

	onMessage := func(op ws.OpCode, payload []byte, _ decoder.Measurement) {
		if op == ws.OpText || op == ws.OpBinary {
			fmt.Println(string(payload))
		}
	}

	scConfig := streamclient.DefaultConfig(cfg.Host, cfg.Port)
	scConfig.Secure = cfg.Secure
	scConfig.RecvTimeout = cfg.RecvTimeout
	scConfig.SendTimeout = cfg.SendTimeout
	scConfig.ReconnectMinGap = cfg.ReconnectMinGap
	scConfig.ReconnectBackOff = cfg.ReconnectBackOff
	scConfig.LogTag = cfg.LogTag

	factory := func(reactor *transport.Reactor, _ bool, opts transport.Options) transport.Transport {
		wsConn, resp, derr := websocket.DefaultDialer.Dial(target.String(), http.Header{})
		if derr != nil {
			logger.Error().Err(derr).Msg("websocket upgrade failed")
			return transport.NewTCP(reactor, opts, nil) // unconnected; Connect will fail loudly
		}
		if resp != nil {
			resp.Body.Close()
		}
		return transport.NewTCPFromConn(reactor, opts, func(format string, args ...any) {
			logger.Debug().Msgf(format, args...)
		}, wsConn.UnderlyingConn())
	}

	svc := streamclient.NewService(scConfig, logger, func(s *streamclient.Service) (*streamclient.Client, error) {
		dec := wsframe.New(onMessage)
		return streamclient.NewClient(s, scConfig, factory, dec)
	})
	svc.OnConnectionRestored = func() { logger.Info().Msg("connection restored") }
	svc.OnStopByError = func(msg string) { logger.Error().Str("reason", msg).Msg("fatal error") }

	if err := svc.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("initial connect failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	svc.Stop()
}

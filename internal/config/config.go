// Package config loads process-wide configuration from the environment,
// with an optional .env file for local development, the same pattern the
// teacher's root config.go uses (caarlos0/env + joho/godotenv).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the full set of environment-tunable options this module's
// cmd/ binaries recognize. Endpoint-specific options (host, port, buffer
// sizing, reconnect timing) live in streamclient.Config, constructed from
// these fields by the binary's main.
type Config struct {
	Host   string `env:"GATEWAY_HOST,required"`
	Port   int    `env:"GATEWAY_PORT" envDefault:"443"`
	Secure bool   `env:"GATEWAY_SECURE" envDefault:"true"`

	InitialBufferBytes int `env:"GATEWAY_INITIAL_BUFFER_BYTES" envDefault:"2097152"`
	MaxBufferBytes      int `env:"GATEWAY_MAX_BUFFER_BYTES" envDefault:"20971520"`

	RecvTimeout time.Duration `env:"GATEWAY_RECV_TIMEOUT" envDefault:"15s"`
	SendTimeout time.Duration `env:"GATEWAY_SEND_TIMEOUT" envDefault:"15s"`

	ReconnectMinGap  time.Duration `env:"GATEWAY_RECONNECT_MIN_GAP" envDefault:"60s"`
	ReconnectBackOff time.Duration `env:"GATEWAY_RECONNECT_BACK_OFF" envDefault:"30s"`

	LogTag    string `env:"GATEWAY_LOG_TAG" envDefault:""`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	NoncePath string `env:"GATEWAY_NONCE_PATH" envDefault:""`

	MetricsAddr     string        `env:"GATEWAY_METRICS_ADDR" envDefault:":9090"`
	MetricsInterval time.Duration `env:"GATEWAY_METRICS_INTERVAL" envDefault:"15s"`

	KafkaBrokers string `env:"GATEWAY_KAFKA_BROKERS" envDefault:""`
	KafkaTopic   string `env:"GATEWAY_KAFKA_TOPIC" envDefault:""`

	NATSURL     string `env:"GATEWAY_NATS_URL" envDefault:""`
	NATSSubject string `env:"GATEWAY_NATS_SUBJECT" envDefault:""`

	JWTSigningKey string        `env:"GATEWAY_JWT_SIGNING_KEY" envDefault:""`
	JWTTTL        time.Duration `env:"GATEWAY_JWT_TTL" envDefault:"5m"`
	AccountID     string        `env:"GATEWAY_ACCOUNT_ID" envDefault:""`
	APIKeyID      string        `env:"GATEWAY_API_KEY_ID" envDefault:""`

	PoisonBuffers bool `env:"GATEWAY_POISON_BUFFERS" envDefault:"false"`
}

// Load reads a .env file (if present) then parses the process environment
// into a Config. Priority: real environment variables, then .env, then the
// envDefault tags above.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogFields emits the non-secret configuration as structured log fields —
// GATEWAY_JWT_SIGNING_KEY is deliberately omitted.
func (c *Config) LogFields(logger zerolog.Logger) *zerolog.Event {
	return logger.Info().
		Str("host", c.Host).
		Int("port", c.Port).
		Bool("secure", c.Secure).
		Int("initial_buffer_bytes", c.InitialBufferBytes).
		Int("max_buffer_bytes", c.MaxBufferBytes).
		Dur("recv_timeout", c.RecvTimeout).
		Dur("send_timeout", c.SendTimeout).
		Dur("reconnect_min_gap", c.ReconnectMinGap).
		Dur("reconnect_back_off", c.ReconnectBackOff).
		Str("log_tag", c.LogTag)
}

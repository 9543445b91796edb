package streamclient

import (
	"time"

	"github.com/palchukovsky/gatewayclient/internal/streambuf"
)

// Config holds the per-endpoint options spec.md §6 recognizes, passed at
// Service/Client construction.
type Config struct {
	Host   string
	Port   int
	Secure bool

	InitialBufferBytes int
	MaxBufferBytes     int

	RecvTimeout time.Duration
	SendTimeout time.Duration

	ReconnectMinGap  time.Duration
	ReconnectBackOff time.Duration

	// LogTag is prefixed to every log line emitted for this endpoint.
	LogTag string

	// PoisonBuffers fills freshly allocated/grown buffer regions with 0xFF.
	// See SPEC_FULL.md "Supplemented features" #2; never set by
	// DefaultConfig.
	PoisonBuffers bool
}

// DefaultConfig returns the spec.md §6 defaults for host:port.
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:                host,
		Port:                port,
		InitialBufferBytes:  streambuf.DefaultInitialCapacity,
		MaxBufferBytes:      streambuf.DefaultMaxCapacity,
		RecvTimeout:         15 * time.Second,
		SendTimeout:         15 * time.Second,
		ReconnectMinGap:     60 * time.Second,
		ReconnectBackOff:    30 * time.Second,
	}
}

// DebugConfig is DefaultConfig with the smaller debug-build initial buffer
// size spec.md §3 describes ("256 bytes in debug builds").
func DebugConfig(host string, port int) Config {
	c := DefaultConfig(host, port)
	c.InitialBufferBytes = streambuf.DebugInitialCapacity
	return c
}

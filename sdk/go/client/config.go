package client

import (
	"net/http"
	"time"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/protocol"
)

// Pull transports.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Config holds configuration for the client
type Config struct {
	// ServerURL is the authority's base URL, e.g. http://localhost:8080.
	ServerURL string `yaml:"server_url"`

	// Transport selects the pull stream: "http" (newline-delimited JSON)
	// or "websocket".
	Transport string `yaml:"transport"`

	// FlushInterval is the batching window for queued records.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// RequestTimeout bounds registration, push and state requests. The
	// pull stream has no timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Protocol protocol.Config `yaml:"protocol"`

	// HTTPClient is used for every request. It must not set a Timeout,
	// which would cut the pull stream.
	HTTPClient *http.Client `yaml:"-"`

	LogLevel log.Level `yaml:"-"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerURL:      "http://localhost:8080",
		Transport:      TransportHTTP,
		FlushInterval:  time.Second,
		RequestTimeout: 10 * time.Second,
		Protocol:       protocol.DefaultConfig(),
		LogLevel:       log.LevelInfo,
	}
}

func (c Config) validate() error {
	if c.ServerURL == "" || c.FlushInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.Transport != TransportHTTP && c.Transport != TransportWebSocket {
		return ErrInvalidConfig
	}
	if c.HTTPClient != nil && c.HTTPClient.Timeout > 0 {
		return ErrInvalidConfig
	}
	return nil
}

package server

import (
	"time"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/protocol"
)

// Config holds server configuration
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// AllowedOrigins lists browser origins allowed to make credentialed
	// requests. Requests without an Origin header are always served.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// CookieSecret signs client identity cookies (HS256).
	CookieSecret string        `yaml:"cookie_secret"`
	CookieTTL    time.Duration `yaml:"cookie_ttl"`

	// SessionQueueSize bounds the frames buffered per pull stream. A stream
	// that falls this far behind is closed.
	SessionQueueSize int `yaml:"session_queue_size"`

	// PushRate and PushBurst limit POST /push per client.
	PushRate  float64 `yaml:"push_rate"`
	PushBurst int     `yaml:"push_burst"`

	MaxBodySize int64 `yaml:"max_body_size"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Protocol protocol.Config `yaml:"protocol"`

	LogLevel log.Level `yaml:"-"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8080",
		AllowedOrigins:   []string{"http://localhost:3000"},
		CookieTTL:        24 * time.Hour,
		SessionQueueSize: 256,
		PushRate:         20,
		PushBurst:        40,
		MaxBodySize:      1024 * 1024, // 1MB
		ShutdownTimeout:  5 * time.Second,
		Protocol:         protocol.DefaultConfig(),
		LogLevel:         log.LevelInfo,
	}
}

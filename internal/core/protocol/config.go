package protocol

import "time"

// Config holds stream transport settings shared by both ends.
type Config struct {
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxMessageSize bounds one frame. 0 means unlimited.
	MaxMessageSize int `yaml:"max_message_size"`

	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// DefaultConfig returns transport defaults. Streams are long-lived, so
// no read deadline is set.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  1024 * 1024, // 1MB
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

package websocket

import "time"

// Config holds the hub connection settings.
type Config struct {
	PingInterval     time.Duration `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout      time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout" yaml:"write_timeout"`
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	BufferSize       int           `json:"buffer_size" yaml:"buffer_size"`
	CookieName       string        `json:"-" yaml:"-"`
}

// DefaultConfig pings every 30s and drops a peer silent for 60s.
func DefaultConfig() Config {
	return Config{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       100,
		CookieName:       "PatientSyncAuthCookie",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.CookieName == "" {
		c.CookieName = d.CookieName
	}
	return c
}

package journal

import "time"

// MemoryPath keeps the journal in a private in-memory database.
const MemoryPath = ":memory:"

// Config holds journal settings.
type Config struct {
	Path         string        `json:"path" yaml:"path"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	RetryDelay   time.Duration `json:"retry_delay" yaml:"retry_delay"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size"`
}

// DefaultConfig returns an in-memory journal with one retry after 5 seconds.
func DefaultConfig() Config {
	return Config{
		Path:         MemoryPath,
		WriteTimeout: 30 * time.Second,
		RetryDelay:   5 * time.Second,
		QueueSize:    100,
	}
}

// Validate checks the settings a journal cannot run without.
func (c Config) Validate() error {
	if c.Path == "" {
		return ErrMissingPath
	}
	if c.WriteTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

func (c Config) inMemory() bool {
	return c.Path == MemoryPath
}

package redis

import (
	goredis "github.com/redis/go-redis/v9"
)

// Config holds configuration for the Redis client.
type Config struct {
	// Addr is the server address. Transactions touch keys of several
	// slots, so a single node (or a primary behind a proxy) is required.
	// Default: "localhost:6379"
	Addr string

	// Password authenticates the connection when set.
	Password string

	// DB selects the logical database on a single node.
	DB int

	// MaxRetries bounds how often Update and Delete re-run their optimistic
	// transaction after a conflicting write.
	// Default: 5
	MaxRetries int

	// ScanCount is the COUNT hint for SCAN during filtered queries.
	// Default: 100
	ScanCount int64

	// TestMode permits Flush, which empties the whole database.
	TestMode bool
}

// DefaultConfig returns a configuration for a local server.
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		MaxRetries: 5,
		ScanCount:  100,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 5
	}
	if c.ScanCount < 1 {
		c.ScanCount = 100
	}
}

// Dial opens a connection pool for the configured server.
func Dial(config Config) *goredis.Client {
	config.validate()
	return goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}

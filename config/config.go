// Package config loads process settings from the environment.
package config

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/toky-team/toky-back-sub001/lock"
	"github.com/toky-team/toky-back-sub001/pubsub"
)

type Config struct {
	Debug      bool   `env:"DEBUG"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	RedisConnectionString string `env:"REDIS_CONNECTION_STRING,required,notEmpty"`
	// DatabaseDSN names a local sqlite database. It is the store of record
	// for one node only; Instances above 1 are rejected.
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:toky.db?_busy_timeout=5000"`
	Instances   int    `env:"INSTANCES" envDefault:"1"`

	LockTTL        time.Duration `env:"LOCK_TTL" envDefault:"3s"`
	LockRetryDelay time.Duration `env:"LOCK_RETRY_DELAY" envDefault:"50ms"`
	LockMaxRetries int           `env:"LOCK_MAX_RETRIES" envDefault:"20"`

	DeduperTTL time.Duration `env:"DEDUPER_TTL" envDefault:"24h"`

	BrokerBuffer         int           `env:"BROKER_BUFFER" envDefault:"256"`
	BrokerBudget         time.Duration `env:"BROKER_BUDGET" envDefault:"2s"`
	BrokerHandoffTimeout time.Duration `env:"BROKER_HANDOFF_TIMEOUT" envDefault:"50ms"`

	RankingPageSize    int           `env:"RANKING_PAGE_SIZE" envDefault:"20"`
	RankingMaxPageSize int           `env:"RANKING_MAX_PAGE_SIZE" envDefault:"100"`
	RankingCacheTTL    time.Duration `env:"RANKING_CACHE_TTL" envDefault:"30s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Instances < 1:
		return fmt.Errorf("invalid INSTANCES: must be at least 1")
	case c.Instances > 1:
		return fmt.Errorf("invalid INSTANCES: sqlite storage is single-node, got %d instances", c.Instances)
	case c.LockTTL <= 0:
		return fmt.Errorf("invalid LOCK_TTL: must be greater than zero")
	case c.LockRetryDelay < 0 || c.LockMaxRetries < 0:
		return fmt.Errorf("invalid lock retry settings")
	case c.DeduperTTL <= 0:
		return fmt.Errorf("invalid DEDUPER_TTL: must be greater than zero")
	case c.RankingPageSize <= 0:
		return fmt.Errorf("invalid RANKING_PAGE_SIZE: must be greater than zero")
	case c.RankingMaxPageSize < c.RankingPageSize:
		return fmt.Errorf("invalid RANKING_MAX_PAGE_SIZE: must not be below RANKING_PAGE_SIZE")
	case c.RankingCacheTTL < 0:
		return fmt.Errorf("invalid RANKING_CACHE_TTL: must not be negative")
	}
	return nil
}

func (c Config) LockOptions() lock.Options {
	return lock.Options{TTL: c.LockTTL, RetryDelay: c.LockRetryDelay, MaxRetries: c.LockMaxRetries}
}

func (c Config) BrokerOptions() pubsub.Options {
	return pubsub.Options{Buffer: c.BrokerBuffer, Budget: c.BrokerBudget, HandoffTimeout: c.BrokerHandoffTimeout}
}

// RedisOptions accepts either a redis:// URL or the
// "host:port,password=...,ssl=true" form issued by managed caches.
func RedisOptions(conn string) (*redis.Options, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, fmt.Errorf("missing redis config")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.Contains(parts[0], "=") || strings.Contains(parts[0], "://") {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

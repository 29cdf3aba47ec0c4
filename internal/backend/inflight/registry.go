// Package inflight tracks pairs that were shown to a curator but not judged yet, so
// pair selection can skip them. Reservations expire after a TTL in case the verdict
// never arrives.
package inflight

import (
	"context"
	"fmt"
	"time"
)

const DefaultTTL = 10 * time.Minute

// Registry records reserved entry ids.
type Registry interface {
	// TryReserve marks ids as one in-flight group for the registry's TTL. It reserves
	// nothing and reports false when any of the ids is already reserved.
	TryReserve(ctx context.Context, ids ...string) (bool, error)
	// Release frees ids together with every other member of their groups.
	Release(ctx context.Context, ids ...string) error
	// Filter returns the ids that are not currently reserved, in input order.
	Filter(ctx context.Context, ids []string) ([]string, error)
	Close() error
}

type Config struct {
	Type     string        `yaml:"type"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func NewRegistry(cfg Config) (Registry, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	switch cfg.Type {
	case "memory", "":
		return NewMemoryRegistry(ttl), nil
	case "redis":
		return NewRedisRegistry(cfg.Address, cfg.Password, cfg.DB, ttl)
	default:
		return nil, fmt.Errorf("unsupported inflight registry: %s", cfg.Type)
	}
}

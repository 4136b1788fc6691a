// Package store is the opaque key-value collaborator consumed by the
// surrounding CRUD services (rooms, shortlinks, game state) and by the
// rate limiter. Values are opaque bytes with a per-entry TTL; nothing
// in the authentication core persists state here.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/loomcast/edgeauth/pkg/config"
)

// Defaults for store implementations.
var Defaults = struct {
	Timeout      time.Duration
	TTL          time.Duration
	MaxLocalSize int
}{
	Timeout:      10 * time.Second, // Timeout for remote store operations
	TTL:          10 * time.Minute, // TTL applied when a caller passes zero
	MaxLocalSize: 100,              // Max entries for the memory store
}

// Store is the opaque get/put/delete-with-TTL interface.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NewStore creates a store implementation based on the configuration.
func NewStore(cfg *config.Config) (Store, error) {
	if cfg == nil || cfg.Store == nil {
		return NewMemoryStore(Defaults.MaxLocalSize), nil
	}

	storeType := cfg.Store.Type
	if storeType == "" {
		storeType = "memory"
	}

	switch storeType {
	case "memory":
		maxSize := cfg.Store.MaxLocalSize
		if maxSize <= 0 {
			maxSize = Defaults.MaxLocalSize
		}
		return NewMemoryStore(maxSize), nil

	case "redis":
		if cfg.Store.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required for redis store")
		}
		return NewRedisStore(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB), nil

	case "dynamodb":
		if cfg.Store.DynamoDBTable == "" {
			return nil, fmt.Errorf("DynamoDB table name is required for dynamodb store")
		}
		return NewDynamoDBStore(cfg.Store.DynamoDBTable)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetProfile retrieves a cached customer profile snapshot.
	GetProfile(ctx context.Context, tenantID string, customerID string) (*ProfileCache, error)

	// SetProfile caches a customer profile snapshot for the serving path.
	SetProfile(ctx context.Context, tenantID string, customerID string, data *ProfileCache, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for live velocity tracking (per-customer transaction counts).
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ProfileCache is the customer snapshot the serving path keys scoring off.
// It carries the profile risk attributes plus the last-seen timestamp used
// for the velocity term.
type ProfileCache struct {
	CustomerID  string  `json:"custId"`
	HomeCountry string  `json:"homeCtry"`
	RiskFactor  float64 `json:"riskFactor"`
	CountryRisk float64 `json:"ctryRisk"`
	LastSeen    string  `json:"lastSeen"` // TimestampLayout, empty if never seen
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}

package stores

import (
	"context"
	"time"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// Store defines the interface for the persistence layer. Both MemoryStore
// and SQLiteStore implement it.
type Store interface {
	engine.ResultStore
	engine.BaselineStore
	engine.AuditSink

	// ListAudit returns audit entries oldest first. An empty evaluationID
	// matches all entries; limit <= 0 means no limit.
	ListAudit(ctx context.Context, evaluationID string, limit int) ([]engine.AuditEntry, error)

	// HealthCheck verifies the store is usable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Config holds store configuration.
type Config struct {
	// Driver selects the implementation: "memory" or "sqlite".
	Driver string `mapstructure:"driver" validate:"oneof=memory sqlite"`

	// Path is the SQLite database file, or ":memory:".
	Path string `mapstructure:"path"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Open creates, initializes and migrates the store selected by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		return NewMemoryStore(), nil
	}

	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

package storage

import (
	"fmt"

	"github.com/backplot/backplot/internal/config"
	gormstorage "github.com/backplot/backplot/internal/storage/gorm"
	"github.com/backplot/backplot/internal/storage/memory"
	sqlitestorage "github.com/backplot/backplot/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration. Connections are
// opened by Init.
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return gormstorage.New(gormstorage.Dependencies{
			Postgres: cfg.Postgres,
			Logger:   log,
		}), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.Path,
		}, log)
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

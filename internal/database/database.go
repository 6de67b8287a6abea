// Package database opens the plot archive databases: Postgres, or SQLite on disk
// or in memory with VACUUM INTO dumps.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is the shared in-memory SQLite database.
const MemoryDSN = "file::memory:?cache=shared"

// ErrNoDumpPath is returned by Dump without a destination.
var ErrNoDumpPath = errors.New("sqlite dump path not set")

// Batch sizes per dialect; Postgres takes much larger inserts.
const (
	postgresBatch = 10000
	sqliteBatch   = 2000
)

var sqlitePragmas = []string{
	"PRAGMA user_version = 1",
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
}

func gormConfig(batch int, prepare bool) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            prepare,
		SkipDefaultTransaction: true,
		CreateBatchSize:        batch,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// PostgresDSN builds the connection string for cfg.
func PostgresDSN(cfg config.PostgresConfig) string {
	kv := []string{
		"host=" + cfg.Host,
		"port=" + cfg.Port,
		"user=" + cfg.Username,
		"password=" + cfg.Password,
		"dbname=" + cfg.Database,
		"sslmode=disable",
	}
	return strings.Join(kv, " ")
}

// OpenPostgres connects and pings. The connection is unusable when an error is
// returned.
func OpenPostgres(cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), gormConfig(postgresBatch, false))
	if err != nil {
		return nil, fmt.Errorf("opening postgres at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	pool.SetMaxOpenConns(10)
	return db, nil
}

// OpenSQLite opens the database file at path, or the shared in-memory database
// when path is empty.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(sqliteBatch, true))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", dsn, err)
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// Migrate creates the archive schema and the machine row if it is not known yet.
func Migrate(db *gorm.DB, machine model.MachineInfo) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	if machine.MachineName == "" {
		return nil
	}
	if err := db.Where(model.MachineInfo{MachineName: machine.MachineName}).FirstOrCreate(&machine).Error; err != nil {
		return fmt.Errorf("recording machine %q: %w", machine.MachineName, err)
	}
	return nil
}

// Dump snapshots db into the file at path, replacing an earlier snapshot.
func Dump(db *gorm.DB, path string) error {
	if path == "" {
		return ErrNoDumpPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dump dir: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing old dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", "file:"+path).Error; err != nil {
		return fmt.Errorf("dumping to %s: %w", path, err)
	}
	return nil
}

// Package sqlitestorage archives plots to an in-memory SQLite database that is
// snapshotted to a file on an interval, at the end of every program and on close.
package sqlitestorage

import (
	"fmt"
	"time"

	"github.com/backplot/backplot/internal/database"
	gormstorage "github.com/backplot/backplot/internal/storage/gorm"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Config names the snapshot file and how often it is rewritten. An empty DumpPath
// keeps the archive in memory only.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string
}

// Backend is the gorm backend over the in-memory database plus the snapshots.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      zerolog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// New opens the in-memory database. Nothing is written before Init.
func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log}),
		db:      db,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Init migrates the schema and starts the snapshot loop if an interval is set.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.dumpLoop()
	}
	return nil
}

// EndProgram writes pending rows and dumps the database so a finished program is
// always on disk.
func (b *Backend) EndProgram() error {
	if err := b.Backend.EndProgram(); err != nil {
		return err
	}
	return b.dump()
}

// Close stops the dump goroutine, closes the embedded GORM backend and writes a
// final dump.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.dump()
}

func (b *Backend) dump() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	start := time.Now()
	if err := database.Dump(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.Debug().Dur("duration", time.Since(start)).Str("path", b.cfg.DumpPath).Msg("snapshot written")
	return nil
}

// dumpLoop needs no pause around snapshots: VACUUM INTO reads a consistent view.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.dump(); err != nil {
				b.log.Error().Err(err).Str("path", b.cfg.DumpPath).Msg("snapshot failed")
			}
		}
	}
}

// Package gormstorage implements the storage.Backend interface using GORM with
// internal queues and a background DB writer goroutine. Postgres is the default
// database; any *gorm.DB may be injected.
package gormstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/database"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/model"
	"github.com/backplot/backplot/internal/model/convert"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/internal/queue"
	"github.com/backplot/backplot/pkg/canon"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultWriteInterval is how often queued rows are written.
const DefaultWriteInterval = 2 * time.Second

// DefaultBatchSize caps the rows written per table per transaction.
const DefaultBatchSize = 5000

// ErrNoProgram is returned when recording before StartProgram.
var ErrNoProgram = errors.New("no program started")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is when set; otherwise Init connects to Postgres.
	DB            *gorm.DB
	Postgres      config.PostgresConfig
	Machine       model.MachineInfo
	Logger        zerolog.Logger
	WriteInterval time.Duration
	BatchSize     int
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Geometries *queue.Queue[model.OriginGeometry]
	Samples    *queue.Queue[model.TraceSample]
}

func newQueues() *queues {
	return &queues{
		Geometries: queue.New[model.OriginGeometry](),
		Samples:    queue.New[model.TraceSample](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	programID atomic.Uint64

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	dbReady  atomic.Bool
}

// New creates a new GORM storage backend. Records are queued until Init
// connects the database.
func New(deps Dependencies) *Backend {
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// Init connects if needed, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.Postgres)
		if err != nil {
			return err
		}
		b.deps.DB = db
	}

	b.deps.Logger.Info().Str("dialect", b.deps.DB.Name()).Msg("Migrating schema")
	if err := database.Migrate(b.deps.DB, b.deps.Machine); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.dbReady.Store(true)

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// DB returns the connection, nil before Init.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Close stops the DB writer goroutine and writes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.Flush()
}

// StartProgram inserts the program row and stamps subsequent records with its ID.
func (b *Backend) StartProgram(p *program.Info) error {
	if !b.dbReady.Load() {
		return nil
	}
	// rows of the previous program keep their ID
	if err := b.Flush(); err != nil {
		return err
	}

	row := convert.ProgramToGorm(p, nil)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new program: %w", err)
	}
	p.ID = row.ID
	b.programID.Store(uint64(row.ID))
	return nil
}

// SetProgramID sets the current program ID (used by CLI tools).
func (b *Backend) SetProgramID(id uint) {
	b.programID.Store(uint64(id))
}

// EndProgram writes pending rows and stamps the program end time.
func (b *Backend) EndProgram() error {
	if !b.dbReady.Load() {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	id := uint(b.programID.Load())
	if id == 0 {
		return nil
	}
	return b.deps.DB.Model(&model.Program{}).Where("id = ?", id).
		Update("ended_at", sql.NullTime{Time: time.Now(), Valid: true}).Error
}

// RecordGeometry converts and queues an origin's geometry.
func (b *Backend) RecordGeometry(g *canon.CompiledGeometry, placement canon.Transform) error {
	row := convert.GeometryToGorm(g, placement)
	row.ProgramID = uint(b.programID.Load())
	b.queues.Geometries.Push(row)
	return nil
}

// RecordTrace converts and queues a trace sample.
func (b *Backend) RecordTrace(s *livetrace.Sample) error {
	row := convert.SampleToGorm(*s)
	row.ProgramID = uint(b.programID.Load())
	b.queues.Samples.Push(row)
	return nil
}

// writeQueue writes one batch from a queue to the database in a transaction.
// Failed batches go back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], max int, name string, log zerolog.Logger) (int, error) {
	if q.Empty() {
		return 0, nil
	}

	items := q.Take(max)
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error().Err(err).Str("table", name).Int("rows", len(items)).Msg("Error writing rows")
		tx.Rollback()
		q.Requeue(items...)
		return 0, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Requeue(items...)
		return 0, fmt.Errorf("committing %s: %w", name, err)
	}
	return len(items), nil
}

// Flush drains all queues into the database.
func (b *Backend) Flush() error {
	if !b.dbReady.Load() {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	for !b.queues.Geometries.Empty() || !b.queues.Samples.Empty() {
		if err := b.writeOnce(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) writeOnce() error {
	start := time.Now()
	lengths := model.WriteQueueLengths{
		Geometries: uint32(b.queues.Geometries.Len()),
		Samples:    uint32(b.queues.Samples.Len()),
	}

	written := 0
	var errs []error
	n, err := writeQueue(b.deps.DB, b.queues.Geometries, b.deps.BatchSize, "origin geometries", b.deps.Logger)
	written += n
	errs = append(errs, err)
	n, err = writeQueue(b.deps.DB, b.queues.Samples, b.deps.BatchSize, "trace samples", b.deps.Logger)
	written += n
	errs = append(errs, err)

	if written > 0 {
		perf := model.WritePerformance{
			Time:                time.Now(),
			ProgramID:           uint(b.programID.Load()),
			WriteQueueLengths:   lengths,
			LastWriteDurationMs: float32(time.Since(start).Microseconds()) / 1000,
		}
		if err := b.deps.DB.Create(&perf).Error; err != nil {
			b.deps.Logger.Warn().Err(err).Msg("Error writing performance row")
		}
	}
	return errors.Join(errs...)
}

// writeLoop periodically drains queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("DB writer failed, retrying next cycle")
			}
		}
	}
}

// Programs lists archived programs, most recent first.
func (b *Backend) Programs(limit int) ([]*program.Info, error) {
	if !b.dbReady.Load() {
		return nil, nil
	}
	var rows []model.Program
	if err := b.deps.DB.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*program.Info, len(rows))
	for i, r := range rows {
		out[i] = convert.ProgramToInfo(r)
	}
	return out, nil
}

// Geometries loads the archived geometry of a program in recording order.
func (b *Backend) Geometries(programID uint) ([]*canon.CompiledGeometry, []canon.Transform, error) {
	if !b.dbReady.Load() {
		return nil, nil, ErrNoProgram
	}
	var rows []model.OriginGeometry
	if err := b.deps.DB.Where("program_id = ?", programID).Order("id").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	geoms := make([]*canon.CompiledGeometry, 0, len(rows))
	placements := make([]canon.Transform, 0, len(rows))
	for _, r := range rows {
		g, tr, err := convert.GeometryToCanon(r)
		if err != nil {
			return nil, nil, err
		}
		geoms = append(geoms, g)
		placements = append(placements, tr)
	}
	return geoms, placements, nil
}

// Trace loads the archived trace of a program in sample order.
func (b *Backend) Trace(programID uint) ([]livetrace.Sample, error) {
	if !b.dbReady.Load() {
		return nil, ErrNoProgram
	}
	var rows []model.TraceSample
	if err := b.deps.DB.Where("program_id = ?", programID).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]livetrace.Sample, len(rows))
	for i, r := range rows {
		out[i] = convert.SampleToCore(r)
	}
	return out, nil
}

// Package influx streams tool positions and load metrics to InfluxDB, falling back
// to a gzipped line protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/program"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement names.
const (
	MeasurementToolPosition = "tool_position"
	MeasurementProgramLoad  = "program_load"
)

// RetentionSeconds is applied to buckets this package creates.
const RetentionSeconds = 60 * 60 * 24 * 90

// ErrDisabled is returned by Connect when influx is switched off.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	return &Manager{
		Logger:     log,
		BackupPath: backupPath,
		cfg:        cfg,
	}
}

// Connect establishes a connection to InfluxDB, or opens the backup file if the
// server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		if err := m.openBackup(); err != nil {
			return err
		}
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return nil
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("url", m.cfg.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	org, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		org, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", orgName, err)
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: RetentionSeconds,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	lineProtocol = strings.TrimSuffix(lineProtocol, "\n") + "\n"
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// SamplePoint builds the tool position point of a trace sample.
func SamplePoint(programName string, s livetrace.Sample) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementToolPosition,
		map[string]string{
			"program": programName,
			"tool":    strconv.Itoa(s.Tool),
		},
		map[string]interface{}{
			"x":   s.Tip.X,
			"y":   s.Tip.Y,
			"z":   s.Tip.Z,
			"seq": int64(s.Seq),
		},
		s.Time)
}

// LoadPoint builds the point describing a program load.
func LoadPoint(p *program.Info) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementProgramLoad,
		map[string]string{
			"program": p.Name,
			"units":   p.Units,
		},
		map[string]interface{}{
			"status":      int64(p.Status),
			"line":        int64(p.Line),
			"recorded":    int64(p.Recorded),
			"suppressed":  int64(p.Suppressed),
			"duration_ms": float64(p.Duration.Microseconds()) / 1000,
		},
		p.LoadedAt)
}

// WriteSample writes one tool position.
func (m *Manager) WriteSample(programName string, s livetrace.Sample) error {
	return m.WritePoint(SamplePoint(programName, s))
}

// WriteLoad writes one program load.
func (m *Manager) WriteLoad(p *program.Info) error {
	return m.WritePoint(LoadPoint(p))
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

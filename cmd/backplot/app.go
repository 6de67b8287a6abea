package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/backplot/backplot/internal/backplot"
	"github.com/backplot/backplot/internal/cache"
	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/dispatcher"
	"github.com/backplot/backplot/internal/influx"
	"github.com/backplot/backplot/internal/interp/trace"
	"github.com/backplot/backplot/internal/logging"
	intOtel "github.com/backplot/backplot/internal/otel"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/internal/storage"
	"github.com/backplot/backplot/internal/worker"
	"github.com/rs/zerolog"
)

// options are the flags shared by all commands.
type options struct {
	configDir string
	// storage overrides storage.type; "none" disables archiving.
	storage   string
	outputDir string
	logLevel  string
}

// app is one wired session: config, logging, the dispatcher and its handlers.
type app struct {
	started time.Time
	logs    *logging.SlogManager
	logger  *slog.Logger
	otel    *intOtel.Provider
	logFile *os.File
	closers []io.Closer

	programs *program.Context
	tools    *cache.ToolCache
	plot     *backplot.Backplot
	events   *dispatcher.Dispatcher
	worker   *worker.Manager
	backend  storage.Backend
	influx   *influx.Manager
}

func openLogFile(dir string, started time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	path := logging.LogFilePath(dir, appName, started)
	// keep one previous session with the same stamp
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
}

func newApp(ctx context.Context, opts options) (*app, error) {
	a := &app{
		started:  time.Now(),
		programs: program.NewContext(),
		tools:    cache.NewToolCache(),
	}

	cfgErr := config.Load(opts.configDir)
	level := config.GetString("logLevel")
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	var err error
	a.logFile, err = openLogFile(config.GetString("logsDir"), a.started)
	if err != nil {
		return nil, err
	}

	otelCfg := config.GetOTelConfig()
	a.otel, err = intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: Version,
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      a.logFile,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	var extra []slog.Handler
	if config.GetBool("graylog.enabled") {
		h, closer, err := logging.NewGraylogHandler(config.GetString("graylog.address"), level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			extra = append(extra, h)
			a.closers = append(a.closers, closer)
		}
	}

	a.logs = logging.NewSlogManager()
	a.logs.SetContext(a.logContext)
	jsonLogs := config.GetString("logFormat") == "json"
	a.logs.Setup(level, logging.Sinks{
		File:  a.logFile,
		JSON:  jsonLogs,
		OTel:  a.otel.LoggerProvider(),
		Extra: extra,
	})
	a.logger = a.logs.Logger()
	a.logger.Info("Starting up", "version", Version, "build", BuildDate)
	if cfgErr != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	}

	zlog := logging.NewZerolog(a.logFile, level, jsonLogs)

	settings, err := config.GetSettings()
	if err != nil {
		a.logger.Warn("display units not configured", "error", err, "units", settings.Units)
	}
	a.plot = backplot.New(settings, a.logger)

	if path := config.GetString("machine.toolTable"); path != "" {
		if err := a.tools.Load(path); err != nil {
			a.Close()
			return nil, fmt.Errorf("loading tool table: %w", err)
		}
		a.logger.Info("tool table loaded", "path", path, "tools", a.tools.Len())
	}

	a.events, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	if err := a.initStorage(opts, zlog); err != nil {
		a.Close()
		return nil, err
	}
	a.initInflux(ctx, zlog)

	a.worker = worker.NewManager(worker.Dependencies{
		Backplot:       a.plot,
		Interpreter:    trace.New(config.GetFloat("machine.arcResolution"), a.logger),
		Tools:          a.tools,
		ProgramContext: a.programs,
		Influx:         a.influx,
		Logger:         a.logger,
	}, a.backend)
	a.worker.RegisterHandlers(a.events)
	a.logger.Debug("handlers registered", "commands", a.events.Commands())

	return a, nil
}

func (a *app) initStorage(opts options, log zerolog.Logger) error {
	if opts.storage == "none" {
		return nil
	}
	cfg := config.GetStorageConfig()
	if opts.storage != "" {
		cfg.Type = opts.storage
	}
	if opts.outputDir != "" {
		cfg.Memory.OutputDir = opts.outputDir
		cfg.SQLite.Path = filepath.Join(opts.outputDir, filepath.Base(cfg.SQLite.Path))
	}

	backend, err := storage.NewBackend(cfg, log)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		if cfg.Type != "postgres" {
			return fmt.Errorf("initializing %s storage: %w", cfg.Type, err)
		}
		a.logger.Warn("postgres unavailable, archiving to sqlite", "error", err, "path", cfg.SQLite.Path)
		cfg.Type = "sqlite"
		if backend, err = storage.NewBackend(cfg, log); err != nil {
			return fmt.Errorf("creating sqlite fallback: %w", err)
		}
		if err := backend.Init(); err != nil {
			return fmt.Errorf("initializing sqlite fallback: %w", err)
		}
	}
	a.backend = backend
	a.logger.Info("storage backend initialized", "type", cfg.Type)
	return nil
}

func (a *app) initInflux(ctx context.Context, log zerolog.Logger) {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}
	backup := filepath.Join(config.GetString("logsDir"), fmt.Sprintf("influx_backup_%s.lp.gz", a.started.Format("20060102_150405")))
	m := influx.NewManager(log, cfg, backup)
	if err := m.Connect(ctx); err != nil {
		a.logger.Warn("influx disabled", "error", err)
		return
	}
	a.influx = m
}

func (a *app) logContext() []slog.Attr {
	if a.programs == nil || !a.programs.Loaded() {
		return nil
	}
	return []slog.Attr{slog.String("program", a.programs.GetProgram().Name)}
}

// load dispatches a program load and returns its result.
func (a *app) load(path string) (*backplot.LoadResult, error) {
	out, err := a.events.Dispatch(dispatcher.Event{Command: worker.CmdLoad, Args: []string{path}})
	res, _ := out.(*backplot.LoadResult)
	return res, err
}

// archive ends the current program. The export runs on the dispatcher's buffer
// and is complete once Close returns.
func (a *app) archive() error {
	_, err := a.events.Dispatch(dispatcher.Event{Command: worker.CmdArchive})
	return err
}

// Close drains the dispatcher and releases every sink.
func (a *app) Close() {
	var errs []error
	if a.events != nil {
		a.events.Close()
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.influx != nil {
		errs = append(errs, a.influx.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.logs != nil {
		errs = append(errs, a.logs.Flush(ctx))
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}

	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Error("shutdown incomplete", "error", err)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

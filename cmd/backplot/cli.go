package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/backplot/backplot/internal/api"
	"github.com/backplot/backplot/internal/backplot"
	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/geo"
	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/internal/monitor"
	"github.com/backplot/backplot/internal/storage"
	"github.com/backplot/backplot/pkg/canon"
)

const usage = `usage: backplot <command> [flags] [args]

commands:
  plot    <trace>            compile a canon trace and print per-origin extents
  export  <trace>            compile and archive a trace to the configured storage
  wkt     [<trace>]          print placed geometry as well-known text
  replay  <trace> <status>   replay recorded machine status (JSON lines) over a trace
  version                    print the build version
`

var errUsage = errors.New("bad usage")

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "plot":
		err = cmdPlot(args[1:], stdout)
	case "export":
		err = cmdExport(args[1:], stdout)
	case "wkt":
		err = cmdWKT(args[1:], stdout)
	case "replay":
		err = cmdReplay(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "%s %s (%s)\n", appName, Version, BuildDate)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return 2
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

// newFlagSet binds the shared flags. Values already in opts are the defaults.
func newFlagSet(name string, opts *options) *flag.FlagSet {
	if opts.configDir == "" {
		opts.configDir = "."
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configDir, "config", opts.configDir, "directory containing "+appName+".cfg.json")
	fs.StringVar(&opts.storage, "storage", opts.storage, "storage backend override: memory, sqlite, postgres or none")
	fs.StringVar(&opts.outputDir, "out", "", "output directory override for exported plots")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override")
	return fs
}

func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if want >= 0 && fs.NArg() != want {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, fs.Name(), want, fs.NArg())
	}
	return fs.Args(), nil
}

// originSummary is one row of the plot command.
type originSummary struct {
	Origin   string       `json:"origin"`
	Vertices int          `json:"vertices"`
	Edges    int          `json:"edges"`
	Length   float64      `json:"length"`
	Min      canon.Point3 `json:"min"`
	Max      canon.Point3 `json:"max"`
}

type plotSummary struct {
	Program    string          `json:"program"`
	Units      string          `json:"units"`
	Status     string          `json:"status"`
	Recorded   int             `json:"recorded"`
	Suppressed int             `json:"suppressed"`
	Duration   string          `json:"duration"`
	Palette    canon.Palette   `json:"palette"`
	Origins    []originSummary `json:"origins"`
}

func summarize(res *backplot.LoadResult, units string, placement func(canon.Origin) canon.Transform) (plotSummary, error) {
	s := plotSummary{
		Program:    res.Program,
		Units:      units,
		Status:     interp.Strerror(res.Result.Status),
		Recorded:   res.Stats.Recorded,
		Suppressed: res.Stats.Suppressed,
		Duration:   res.Duration.Round(time.Microsecond).String(),
	}
	for _, g := range res.Geometries {
		row := originSummary{
			Origin:   g.Origin.String(),
			Vertices: g.NumVertices(),
			Edges:    len(g.Lines),
		}
		mls := geo.MultiLineString(g, placement(g.Origin)).AsGeometry()
		if !mls.IsEmpty() {
			min, max, err := geo.Bounds(mls)
			if err != nil {
				return s, fmt.Errorf("bounds of %s: %w", g.Origin, err)
			}
			row.Min, row.Max = min, max
			row.Length = geo.Length(mls)
		}
		s.Origins = append(s.Origins, row)
	}
	return s, nil
}

func writeSummary(w io.Writer, s plotSummary) error {
	fmt.Fprintf(w, "%s: %s, %d segments (%d suppressed) in %s\n",
		s.Program, s.Status, s.Recorded, s.Suppressed, s.Duration)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ORIGIN\tVERTICES\tEDGES\tLENGTH (%s)\tMIN\tMAX\n", s.Units)
	for _, o := range s.Origins {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%s\t%s\n",
			o.Origin, o.Vertices, o.Edges, o.Length, formatPoint(o.Min), formatPoint(o.Max))
	}
	return tw.Flush()
}

func formatPoint(p canon.Point3) string {
	return fmt.Sprintf("%.3f,%.3f,%.3f", p.X, p.Y, p.Z)
}

func cmdPlot(args []string, stdout io.Writer) error {
	opts := options{storage: "none"}
	fs := newFlagSet("plot", &opts)
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	a, err := newApp(context.Background(), opts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.load(rest[0])
	if err != nil {
		return err
	}
	settings := a.plot.Settings()
	s, err := summarize(res, settings.Units.String(), a.plot.ActiveTransform)
	if err != nil {
		return err
	}
	s.Palette = settings.Palette
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	return writeSummary(stdout, s)
}

func cmdExport(args []string, stdout io.Writer) error {
	var opts options
	fs := newFlagSet("export", &opts)
	upload := fs.Bool("upload", false, "upload the exported plot to api.serverUrl")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	if opts.storage == "none" {
		return fmt.Errorf("%w: export needs a storage backend", errUsage)
	}

	a, err := newApp(context.Background(), opts)
	if err != nil {
		return err
	}
	if _, err := a.load(rest[0]); err != nil {
		a.Close()
		return err
	}
	if err := a.archive(); err != nil {
		a.Close()
		return err
	}
	info := a.programs.GetProgram()
	backend := a.backend
	a.Close()

	ex, ok := backend.(storage.Exporter)
	if !ok || ex.ExportedFilePath() == "" {
		if *upload {
			return fmt.Errorf("%w: -upload needs the memory backend", errUsage)
		}
		fmt.Fprintf(stdout, "archived %s as program %d\n", info.Name, info.ID)
		return nil
	}

	path := ex.ExportedFilePath()
	fmt.Fprintln(stdout, path)
	if !*upload {
		return nil
	}
	client := api.New(config.GetString("api.serverUrl"), config.GetString("api.apiKey"))
	ctx := context.Background()
	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("plot server unavailable: %w", err)
	}
	if err := client.Upload(ctx, path, info); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "uploaded %s\n", filepath.Base(path))
	return nil
}

func cmdWKT(args []string, stdout io.Writer) error {
	opts := options{storage: "none"}
	fs := newFlagSet("wkt", &opts)
	tracePath := fs.String("trace", "", "JSON polyline file ([[x,y,z],...]) to print as a line string")
	rest, err := parseArgs(fs, args, -1)
	if err != nil {
		return err
	}
	if len(rest) > 1 || (len(rest) == 0 && *tracePath == "") {
		return fmt.Errorf("%w: wkt takes a trace file and/or -trace", errUsage)
	}

	if *tracePath != "" {
		data, err := os.ReadFile(*tracePath)
		if err != nil {
			return err
		}
		ls, err := geo.ParsePolylineLineString(data)
		if err != nil {
			return fmt.Errorf("%s: %w", *tracePath, err)
		}
		fmt.Fprintf(stdout, "TRACE\t%s\n", geo.WKT(ls.AsGeometry()))
	}
	if len(rest) == 0 {
		return nil
	}

	a, err := newApp(context.Background(), opts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.load(rest[0])
	if err != nil {
		return err
	}
	for _, g := range res.Geometries {
		mls := geo.MultiLineString(g, a.plot.ActiveTransform(g.Origin))
		fmt.Fprintf(stdout, "%s\t%s\n", g.Origin, geo.WKT(mls.AsGeometry()))
	}
	return nil
}

func cmdReplay(args []string, stdout io.Writer) error {
	var opts options
	fs := newFlagSet("replay", &opts)
	interval := fs.Duration("interval", 0, "delay between replayed samples (default monitor.pollInterval)")
	offsetEvery := fs.Int("offset-every", 0, "poll offsets every n samples (default monitor.offsetEvery)")
	statusPath := fs.String("status", "", "file rewritten with the monitor status on every sample")
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	src, err := monitor.OpenReplay(rest[1])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.load(rest[0]); err != nil {
		return err
	}

	mc := config.GetMonitorConfig()
	if *interval <= 0 {
		*interval = mc.PollInterval
	}
	if *offsetEvery <= 0 {
		*offsetEvery = mc.OffsetEvery
	}
	svc := monitor.NewService(monitor.Dependencies{
		Source:         src,
		Dispatcher:     a.events,
		Logger:         a.logger,
		ProgramContext: a.programs,
		PollInterval:   *interval,
		OffsetEvery:    *offsetEvery,
		StatusPath:     *statusPath,
	})
	if err := svc.Start(ctx); err != nil {
		return err
	}
	select {
	case <-svc.Done():
	case <-ctx.Done():
		svc.Stop()
		<-svc.Done()
	}

	var points int
	_ = a.worker.WithBackplot(func(b *backplot.Backplot) error {
		points = b.LiveTrace().Len()
		return nil
	})
	fmt.Fprintf(stdout, "replayed %d of %d samples, trace has %d points\n",
		svc.LastStatus().Ticks, src.Len(), points)
	if a.backend != nil {
		return a.archive()
	}
	return nil
}

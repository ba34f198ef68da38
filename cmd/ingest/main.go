package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"geoingest/internal/config"
	"geoingest/internal/dataset"
	"geoingest/internal/ingest"
	"geoingest/internal/metrics"
	"geoingest/internal/metrics/datadog"
	"geoingest/internal/metrics/prompush"
	"geoingest/internal/progress"

	// register all backends with the storage factory.
	_ "geoingest/internal/storage/all"
)

// runner is the pipeline seam used by runMain.
type runner interface {
	Run(ctx context.Context, p config.Pipeline) (ingest.Result, error)
}

// runnerOptions carries the per-run wiring the CLI owns.
type runnerOptions struct {
	Logger   ingest.Logger
	Progress *progress.Counter
	RunID    string
	Verbose  bool
}

// metricsOptions selects and configures the metrics backend.
type metricsOptions struct {
	JobName        string
	Backend        string
	PushGatewayURL string
	RunID          string
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	readFile    func(path string) ([]byte, error)
	unmarshal   func(data []byte, v any) error
	newRunner   func(opts runnerOptions) runner
	initMetrics func(ctx context.Context, opts metricsOptions) (cleanup func(), err error)
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:  os.ReadFile,
		unmarshal: json.Unmarshal,
		newRunner: func(opts runnerOptions) runner {
			r := ingest.NewDefaultRunner()
			r.Logger = opts.Logger
			r.Progress = opts.Progress
			r.RunID = opts.RunID
			r.Verbose = opts.Verbose
			return r
		},
		initMetrics: initMetrics,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain is main without process globals. Exit codes: 0 success, 1 config or
// runtime failure, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath     string
		dir         string
		workers     int
		batchSize   int
		backendName string
		gatewayURL  string
		validate    bool
		verbose     bool
	)
	fs.StringVar(&cfgPath, "config", "", "pipeline config JSON path")
	fs.StringVar(&dir, "dir", "", "input directory (overrides source.dir)")
	fs.IntVar(&workers, "workers", 0, "files ingested concurrently (overrides runtime.file_workers)")
	fs.IntVar(&batchSize, "batch-size", 0, "documents per bulk request (overrides runtime.batch_size)")
	fs.StringVar(&backendName, "metrics-backend", "", "metrics backend: none|datadog|pushgateway (default $METRICS_BACKEND or none)")
	fs.StringVar(&gatewayURL, "pushgateway-url", "", "Pushgateway base URL (default $PUSHGATEWAY_URL or http://localhost:9091)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfgPath = strings.TrimSpace(cfgPath)
	if cfgPath == "" {
		fmt.Fprintln(stderr, "usage: ingest -config path/to/pipeline.json [-dir data] [-workers n] [-batch-size n] [-validate] [-v]")
		return 2
	}

	raw, err := deps.readFile(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	var p config.Pipeline
	if err := deps.unmarshal(raw, &p); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}

	if dir != "" {
		p.Source.Dir = dir
	}
	if workers > 0 {
		p.Runtime.FileWorkers = workers
	}
	if batchSize > 0 {
		p.Runtime.BatchSize = batchSize
	}
	if err := dataset.Apply(&p); err != nil {
		fmt.Fprintf(stderr, "dataset: %v\n", err)
		return 1
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "invalid config: %s\n", cfgPath)
		return 1
	}
	if validate {
		fmt.Fprintf(stdout, "config ok: %s\n", cfgPath)
		return 0
	}

	runID := uuid.NewString()
	cleanup, err := deps.initMetrics(ctx, metricsOptions{
		JobName:        p.Job,
		Backend:        backendName,
		PushGatewayURL: gatewayURL,
		RunID:          runID,
	})
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	logger := log.New(stderr, "", log.LstdFlags)
	counter := &progress.Counter{}
	printer := progress.NewPrinter(stderr)
	counter.OnChange(printer.Update)

	r := deps.newRunner(runnerOptions{
		Logger:   logger,
		Progress: counter,
		RunID:    runID,
		Verbose:  verbose,
	})
	res, err := r.Run(ctx, p)
	printer.Done()
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "ok: %s documents indexed into %s\n", humanize.Comma(res.Total), res.Index)
	return 0
}

// metricsBackend is the part of a metrics backend the CLI owns: shutdown.
type metricsBackend interface {
	Close() error
}

// Seams for tests.
var (
	setMetricsBackend = func(b any) {
		mb, _ := b.(metrics.Backend)
		metrics.SetBackend(mb)
	}
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string, grouping ...string) (metrics.Backend, error) {
		return prompush.NewBackend(job, url, grouping...)
	}
	logPrintf = log.Printf
)

// initMetrics wires the selected backend into the metrics package. cleanup is
// never nil and is safe to call on every path.
//
// Backend selection: opts.Backend, then $METRICS_BACKEND, then none.
func initMetrics(ctx context.Context, opts metricsOptions) (func(), error) {
	noop := func() {}

	name := opts.Backend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	job := opts.JobName
	if job == "" {
		job = "ingest"
	}

	switch name {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		if opts.RunID != "" {
			tags = append(tags, "run_id:"+opts.RunID)
		}
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			// Close stops the flush loop and submits what is buffered.
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway", "prometheus":
		url := opts.PushGatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		var grouping []string
		if opts.RunID != "" {
			grouping = append(grouping, "run_id="+opts.RunID)
		}
		b, err := newPushBackend(job, url, grouping...)
		if err != nil {
			return noop, fmt.Errorf("pushgateway: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", name)
	}
}

package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"geoingest/internal/config"
	"geoingest/internal/metrics"
	"geoingest/internal/progress"
	"geoingest/internal/reference"
	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateInit    State = "INIT"
	StateReady   State = "READY"
	StateRunning State = "RUNNING"
	StateDone    State = "DONE"
	StateFailed  State = "FAILED"
)

// Result is the outcome of one Run.
type Result struct {
	RunID    string
	Index    string
	State    State
	Files    []FileStats // in directory order; files never started are absent
	Total    int64
	Duration time.Duration
}

// Runner recreates the index and ingests every matching file of the source
// directory.
type Runner struct {
	// NewSink is the storage-agnostic factory seam. Defaults to storage.New.
	NewSink func(ctx context.Context, cfg storage.Config) (storage.Sink, error)

	// OpenTable resolves the lookup's reference table. Defaults to
	// reference.Open.
	OpenTable func(name, path string) (transformer.ReferenceTable, error)

	// Progress is the shared running total. When nil, Run uses a private one.
	Progress *progress.Counter

	// RunID tags logs. When empty, Run generates one.
	RunID string

	Logger  Logger
	Verbose bool
}

// NewDefaultRunner returns a Runner backed by the registered storage
// backends and the built-in reference tables.
func NewDefaultRunner() *Runner {
	return &Runner{
		NewSink: storage.New,
		OpenTable: func(name, path string) (transformer.ReferenceTable, error) {
			return reference.Open(name, path)
		},
	}
}

// Run executes the pipeline: INIT -> recreate index -> READY -> ingest files
// -> RUNNING -> DONE. Any fatal error moves to FAILED and stops scheduling
// further files; in-flight files stop at their next row or batch.
//
// Errors:
//   - *ConfigurationError when transform rules, the reference table, the sink
//     or the index recreation fail. Nothing has been submitted.
//   - *FileError for the first file that failed.
func (r *Runner) Run(ctx context.Context, p config.Pipeline) (Result, error) {
	start := time.Now()
	logf := loggerFunc(r.Logger)
	rt := p.Runtime.WithDefaults()

	res := Result{RunID: r.RunID, Index: p.Index.Name, State: StateInit}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	logf("stage=pipeline run_id=%s job=%s index=%s state=%s", res.RunID, p.Job, res.Index, res.State)

	failed := func(err error) (Result, error) {
		res.State = StateFailed
		res.Duration = durMS(start)
		logf("stage=pipeline run_id=%s state=%s indexed=%d duration=%s err=%v",
			res.RunID, res.State, res.Total, res.Duration, err)
		return res, err
	}

	t, err := r.buildTransformer(p.Transform)
	if err != nil {
		return failed(err)
	}

	files, err := ListFiles(p.Source.Dir, p.Source.Pattern)
	if err != nil {
		return failed(fmt.Errorf("list source dir: %w", err))
	}
	if len(files) == 0 {
		logf("stage=list dir=%s pattern=%q warning=no_files", p.Source.Dir, p.Source.Pattern)
	}

	newSink := r.NewSink
	if newSink == nil {
		newSink = storage.New
	}
	sink, err := newSink(ctx, p.StorageConfig())
	if err != nil {
		return failed(&ConfigurationError{Op: "connect " + p.Storage.Kind, Err: err})
	}
	defer sink.Close()

	recreateStart := time.Now()
	err = sink.RecreateIndex(ctx, p.Index)
	metrics.RecordStep("recreate_index", metrics.Status(err), time.Since(recreateStart))
	if err != nil {
		return failed(&ConfigurationError{Op: "recreate index " + p.Index.Name, Err: err})
	}
	res.State = StateReady
	logf("stage=recreate_index index=%s ok duration=%s", p.Index.Name, durMS(recreateStart))

	counter := r.Progress
	if counter == nil {
		counter = &progress.Counter{}
	}
	base := counter.Total()

	fi := &FileIngestor{
		Sink:          sink,
		Index:         p.Index.Name,
		Transformer:   t,
		Parser:        p.Parser.Options,
		BatchSize:     rt.BatchSize,
		ChannelBuffer: rt.ChannelBuffer,
		Progress:      counter,
		Logger:        r.Logger,
		Verbose:       r.Verbose,
	}

	res.State = StateRunning
	logf("stage=pipeline run_id=%s state=%s files=%d file_workers=%d batch_size=%d",
		res.RunID, res.State, len(files), rt.FileWorkers, rt.BatchSize)

	stats := make([]*FileStats, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.FileWorkers)
	for i, path := range files {
		i, path := i, path
		// Fail fast: no new file starts once one has failed.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			st, err := fi.IngestFile(gctx, path)
			stats[i] = &st
			return err
		})
	}
	err = g.Wait()

	for _, st := range stats {
		if st != nil {
			res.Files = append(res.Files, *st)
		}
	}
	res.Total = counter.Total() - base
	if err != nil {
		return failed(err)
	}

	res.State = StateDone
	res.Duration = durMS(start)
	metrics.RecordStep("run", metrics.Status(nil), res.Duration)
	logf("stage=pipeline run_id=%s state=%s files=%d indexed=%d duration=%s",
		res.RunID, res.State, len(res.Files), res.Total, res.Duration)
	return res, nil
}

func (r *Runner) buildTransformer(tc config.Transform) (*transformer.Transformer, error) {
	var table transformer.ReferenceTable
	if tc.Lookup != nil {
		open := r.OpenTable
		if open == nil {
			open = func(name, path string) (transformer.ReferenceTable, error) {
				return reference.Open(name, path)
			}
		}
		t, err := open(tc.Lookup.Table, tc.Lookup.Path)
		if err != nil {
			return nil, &ConfigurationError{Op: "reference table", Err: err}
		}
		table = t
	}
	t, err := transformer.New(tc.Fields, tc.Lookup, table)
	if err != nil {
		return nil, &ConfigurationError{Op: "transform rules", Err: err}
	}
	return t, nil
}

// ListFiles returns the regular files of dir whose base name matches pattern,
// sorted by name. An empty pattern matches everything. Hidden files and
// subdirectories are ignored.
func ListFiles(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if ok, _ := filepath.Match(pattern, name); !ok {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// Package ingest drives CSV files through the transformer into a storage sink:
// one streaming reader and one transform/batch/submit loop per file, and an
// orchestrator that recreates the index and fans out over the input directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"geoingest/internal/config"
	"geoingest/internal/metrics"
	csvparser "geoingest/internal/parser/csv"
	"geoingest/internal/progress"
	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

// DefaultBatchSize is the number of documents per bulk request.
const DefaultBatchSize = config.DefaultBatchSize

// Logger is the minimal logging interface used by the ingestor.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// FileStats summarizes one file.
type FileStats struct {
	File      string
	Read      int // rows decoded by the CSV reader
	Malformed int // records the CSV reader could not decode
	Indexed   int // documents acknowledged by the sink
	Skipped   int // rows without a reference entry
	Rejected  int // rows dropped for a field coercion error
	Batches   int
	Duration  time.Duration
}

// FileIngestor streams one file at a time into Sink.
//
// Concurrency:
//   - IngestFile may be called from several goroutines at once; each call owns
//     its own Batcher. Transformer and Progress are shared and concurrency-safe.
type FileIngestor struct {
	Sink        storage.Sink
	Index       string
	Transformer *transformer.Transformer
	Parser      config.Options

	BatchSize     int
	ChannelBuffer int

	// Progress receives every acknowledged count. Optional.
	Progress *progress.Counter

	Logger  Logger
	Verbose bool

	// Open is a seam for tests. When nil, os.Open is used.
	Open func(path string) (io.ReadCloser, error)
}

// IngestFile streams path through transform, batching and submission.
//
// Rows are processed in file order. Each full batch is submitted synchronously
// before the next row is consumed, so at most one batch plus ChannelBuffer rows
// are in memory.
//
// Errors:
//   - Open/read failures and sink failures are returned as *FileError and stop
//     the file immediately; the remaining rows are not read.
//   - A strict lookup miss is fatal as well.
//   - Coercion failures (*transformer.RowError) and lenient lookup misses only
//     drop the row.
func (fi *FileIngestor) IngestFile(ctx context.Context, path string) (FileStats, error) {
	start := time.Now()
	logf := fi.logger()
	stats := FileStats{File: filepath.Base(path)}

	fail := func(err error) (FileStats, error) {
		stats.Duration = durMS(start)
		fi.recordRows(stats)
		return stats, &FileError{File: stats.File, Index: fi.Index, Err: err}
	}

	if fi.Sink == nil || fi.Transformer == nil {
		return fail(fmt.Errorf("ingestor: Sink and Transformer are required"))
	}

	src, err := fi.open(path)
	if err != nil {
		return fail(fmt.Errorf("open: %w", err))
	}

	buf := fi.ChannelBuffer
	if buf <= 0 {
		buf = fi.BatchSize
	}
	if buf <= 0 {
		buf = DefaultBatchSize
	}

	// Any fatal error in the consume loop cancels the reader with a cause.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rows := make(chan *transformer.Row, buf)
	readErr := make(chan error, 1)
	malformed := 0
	go func() {
		defer close(rows)
		readErr <- csvparser.StreamCSVRows(ctx, src, fi.Parser, rows, func(line int, err error) {
			malformed++
			if fi.Verbose {
				logf("stage=read file=%s line=%d status=malformed err=%v", stats.File, line, err)
			}
		})
	}()

	b := NewBatcher(fi.BatchSize)
	var fatal error
	for r := range rows {
		if fatal != nil {
			// Drain so the reader can unwind.
			r.Drop()
			continue
		}

		stats.Read++
		doc, ok, terr := fi.Transformer.Transform(r.Fields)
		line := r.Line
		r.Free()

		if terr != nil {
			var re *transformer.RowError
			if errors.As(terr, &re) {
				re.Line = line
				stats.Rejected++
				if fi.Verbose {
					logf("stage=transform file=%s status=rejected err=%v", stats.File, re)
				}
				continue
			}
			fatal = fmt.Errorf("line %d: %w", line, terr)
			cancel(fatal)
			continue
		}
		if !ok {
			stats.Skipped++
			continue
		}

		if batch := b.Add(doc); batch != nil {
			if err := fi.submit(ctx, batch, &stats); err != nil {
				fatal = err
				cancel(err)
			}
		}
	}

	rerr := <-readErr
	stats.Malformed = malformed

	if fatal != nil {
		return fail(fatal)
	}
	if rerr != nil {
		return fail(fmt.Errorf("read: %w", rerr))
	}
	if err := context.Cause(ctx); err != nil {
		return fail(err)
	}

	if batch := b.Flush(); batch != nil {
		if err := fi.submit(ctx, batch, &stats); err != nil {
			return fail(err)
		}
	}

	stats.Duration = durMS(start)
	fi.recordRows(stats)
	logf(
		"stage=file file=%s rows=%d indexed=%d skipped=%d rejected=%d malformed=%d batches=%d duration=%s",
		stats.File, stats.Read, stats.Indexed, stats.Skipped, stats.Rejected, stats.Malformed, stats.Batches, stats.Duration,
	)
	return stats, nil
}

// submit sends one batch and blocks until the sink answers.
func (fi *FileIngestor) submit(ctx context.Context, batch []transformer.Document, stats *FileStats) error {
	start := time.Now()
	n, err := fi.Sink.SubmitBatch(ctx, fi.Index, batch)
	metrics.RecordBatch(metrics.Status(err), time.Since(start))
	stats.Batches++

	// A partially rejected batch still has acknowledged documents in the index.
	if n > 0 {
		stats.Indexed += n
		if fi.Progress != nil {
			fi.Progress.Add(n)
		}
	}
	if err != nil {
		return fmt.Errorf("submit batch %d (%d docs): %w", stats.Batches, len(batch), err)
	}
	if fi.Verbose {
		fi.logger()("stage=bulk file=%s batch=%d docs=%d acknowledged=%d duration=%s",
			stats.File, stats.Batches, len(batch), n, durMS(start))
	}
	return nil
}

func (fi *FileIngestor) recordRows(s FileStats) {
	metrics.RecordRows(metrics.KindRead, s.Read)
	metrics.RecordRows(metrics.KindIndexed, s.Indexed)
	metrics.RecordRows(metrics.KindSkipped, s.Skipped)
	metrics.RecordRows(metrics.KindRejected, s.Rejected+s.Malformed)
}

func (fi *FileIngestor) open(path string) (io.ReadCloser, error) {
	if fi.Open != nil {
		return fi.Open(path)
	}
	return os.Open(path)
}

func (fi *FileIngestor) logger() func(format string, v ...any) {
	return loggerFunc(fi.Logger)
}

func loggerFunc(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(discardWriter{}, "", 0).Printf
	}
	return l.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }

// Package transfer copies files from a source tree to a destination share
// with a fixed worker pool. The ledger makes runs resumable: files marked
// copied in a previous run with the same scope are skipped, so an
// interrupted bulk copy picks up where it left off.
package transfer

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/state"
)

// File is one item to copy.
type File struct {
	ID   string
	Name string
	Path string // source-relative path, e.g. "/Reports/2026/q2.xlsx"
	Size int64
}

// Source enumerates and opens files.
type Source interface {
	// Enumerate walks the tree under root and returns every file.
	Enumerate(ctx context.Context, root string) ([]File, error)

	// Open returns the content stream for a file. The caller closes it.
	Open(ctx context.Context, f File) (io.ReadCloser, int64, error)
}

// Destination receives files.
type Destination interface {
	// EnsureDirectory creates the directory (and parents) if missing.
	EnsureDirectory(ctx context.Context, dir string) error

	// Upload writes size bytes from r to the destination path.
	Upload(ctx context.Context, path string, r io.Reader, size int64) error
}

// Options configures a copy run.
type Options struct {
	// Scope keys the ledger; runs sharing a scope resume each other.
	Scope string

	// SourceRoot is the tree to enumerate.
	SourceRoot string

	// DestRoot is prefixed to every destination path.
	DestRoot string

	// Workers is the pool size. Zero means 8.
	Workers int

	// RetryAttempts is per-file tries for retryable errors. Zero means 3.
	RetryAttempts int

	// SkipZeroByte skips empty files instead of creating empty targets.
	SkipZeroByte bool

	// ProgressInterval controls progress log cadence. Zero means 10s.
	ProgressInterval time.Duration
}

// Summary is the outcome of a run.
type Summary struct {
	Enumerated int64
	Copied     int64
	Skipped    int64
	Failed     int64
	Bytes      int64
	Duration   time.Duration
}

// Engine runs resumable bulk copies.
type Engine struct {
	src    Source
	dst    Destination
	ledger state.TransferLedger
	opts   Options
	log    zerolog.Logger

	copied  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
	bytes   atomic.Int64
}

// NewEngine builds an engine. Ledger may not be nil; use the memory store
// for dry runs.
func NewEngine(src Source, dst Destination, ledger state.TransferLedger, opts Options, log zerolog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 10 * time.Second
	}
	return &Engine{src: src, dst: dst, ledger: ledger, opts: opts, log: log}
}

// Run enumerates the source and copies every file not already in the
// ledger. Individual file failures are recorded and do not stop the run;
// Run returns an error only when enumeration fails or the context ends.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	files, err := e.src.Enumerate(ctx, e.opts.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", e.opts.SourceRoot, err)
	}
	e.log.Info().Int("files", len(files)).Str("scope", e.opts.Scope).Msg("enumeration complete")

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go e.reportProgress(progressCtx, int64(len(files)))

	jobs := make(chan File)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < e.opts.Workers; i++ {
		g.Go(func() error {
			for f := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				e.copyOne(gctx, f)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{
		Enumerated: int64(len(files)),
		Copied:     e.copied.Load(),
		Skipped:    e.skipped.Load(),
		Failed:     e.failed.Load(),
		Bytes:      e.bytes.Load(),
		Duration:   time.Since(start),
	}
	e.log.Info().
		Int64("copied", summary.Copied).
		Int64("skipped", summary.Skipped).
		Int64("failed", summary.Failed).
		Int64("bytes", summary.Bytes).
		Dur("duration", summary.Duration).
		Msg("copy run finished")
	return summary, nil
}

func (e *Engine) copyOne(ctx context.Context, f File) {
	if e.opts.SkipZeroByte && f.Size == 0 {
		e.skipped.Add(1)
		return
	}

	copied, err := e.ledger.IsCopied(ctx, e.opts.Scope, f.ID)
	if err != nil {
		e.log.Warn().Err(err).Str("path", f.Path).Msg("ledger lookup failed, copying anyway")
	} else if copied {
		e.skipped.Add(1)
		return
	}

	attempts := 0
	for {
		attempts++
		err = e.copyFile(ctx, f)
		if err == nil {
			break
		}
		if attempts >= e.opts.RetryAttempts || !coded.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		// Same backoff curve as the HTTP layer.
		delay := time.Duration(1<<uint(attempts-1)) * 100 * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}

	entry := &state.LedgerEntry{
		Scope:     e.opts.Scope,
		ItemID:    f.ID,
		Path:      f.Path,
		SizeBytes: f.Size,
		Attempts:  attempts,
	}
	if err != nil {
		entry.LastError = err.Error()
		if lerr := e.ledger.MarkFailed(ctx, entry); lerr != nil {
			e.log.Error().Err(lerr).Str("path", f.Path).Msg("ledger write failed")
		}
		e.failed.Add(1)
		e.log.Error().Err(err).Str("path", f.Path).Int("attempts", attempts).Msg("copy failed")
		return
	}

	entry.Copied = true
	if lerr := e.ledger.MarkCopied(ctx, entry); lerr != nil {
		e.log.Error().Err(lerr).Str("path", f.Path).Msg("ledger write failed")
	}
	e.copied.Add(1)
	e.bytes.Add(f.Size)
}

func (e *Engine) copyFile(ctx context.Context, f File) error {
	destPath := joinDest(e.opts.DestRoot, f.Path)
	if dir := path.Dir(destPath); dir != "." && dir != "/" {
		if err := e.dst.EnsureDirectory(ctx, dir); err != nil {
			return fmt.Errorf("ensure directory %s: %w", dir, err)
		}
	}

	r, size, err := e.src.Open(ctx, f)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer r.Close()
	if size < 0 {
		size = f.Size
	}

	if err := e.dst.Upload(ctx, destPath, r, size); err != nil {
		return fmt.Errorf("upload %s: %w", destPath, err)
	}
	return nil
}

func (e *Engine) reportProgress(ctx context.Context, total int64) {
	ticker := time.NewTicker(e.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done := e.copied.Load() + e.skipped.Load() + e.failed.Load()
			e.log.Info().
				Int64("done", done).
				Int64("total", total).
				Int64("copied", e.copied.Load()).
				Int64("failed", e.failed.Load()).
				Msg("copy progress")
		}
	}
}

func joinDest(root, p string) string {
	p = strings.TrimPrefix(p, "/")
	root = strings.Trim(root, "/")
	if root == "" {
		return p
	}
	return root + "/" + p
}

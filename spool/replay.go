package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pq "github.com/JimWen/gods-generic/queues/priorityqueue"
	"github.com/JimWen/gods-generic/utils"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
)

// A ReplayHandler consumes one decoded batch of spooled spans. If it
// returns an error the batch file is kept on disk for a later attempt.
type ReplayHandler func(ctx context.Context, spans []Record) error

type replayOptions struct {
	concurrency int
	keepFiles   bool
	logger      *log.Logger
}

// ReplayOption configures Replay.
type ReplayOption func(*replayOptions)

// WithConcurrency sets how many batches may be handled at once. With
// the default of 1, batches reach the handler strictly oldest-first;
// higher values trade that ordering for throughput.
func WithConcurrency(n int) ReplayOption {
	return func(o *replayOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// KeepFiles leaves batch files on disk after they have been handled.
func KeepFiles() ReplayOption {
	return func(o *replayOptions) {
		o.keepFiles = true
	}
}

// WithReplayLogger sets the logger used for diagnostics.
func WithReplayLogger(logger *log.Logger) ReplayOption {
	return func(o *replayOptions) {
		o.logger = logger
	}
}

type spoolFile struct {
	path    string
	written int64
}

// Replay drains a spool directory, dispatching batches to handler in
// the order they were written. Files the handler accepts are deleted
// unless KeepFiles is given; files that cannot be decoded are logged
// and skipped, never deleted. Replay returns the first handler error.
func Replay(ctx context.Context, dir string, handler ReplayHandler, opts ...ReplayOption) error {
	o := replayOptions{
		concurrency: 1,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("spool: reading directory: %w", err)
	}

	queue := pq.NewWith(func(a, b spoolFile) int {
		return utils.NumberComparator(a.written, b.written)
	})

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		queue.Enqueue(spoolFile{
			path:    filepath.Join(dir, name),
			written: writtenAt(entry),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for {
		f, ok := queue.Dequeue()
		if !ok {
			break
		}
		g.Go(func() error {
			return replayFile(gctx, f, handler, &o)
		})
	}

	return g.Wait()
}

// writtenAt recovers the batch timestamp from the file name prefix,
// falling back to the file's modification time.
func writtenAt(entry os.DirEntry) int64 {
	name := entry.Name()
	if i := strings.IndexByte(name, '-'); i > 0 {
		if ts, err := strconv.ParseInt(name[:i], 10, 64); err == nil {
			return ts
		}
	}
	if info, err := entry.Info(); err == nil {
		return info.ModTime().UnixNano()
	}
	return 0
}

func replayFile(ctx context.Context, f spoolFile, handler ReplayHandler, o *replayOptions) error {
	b, err := readBatch(f.path)
	if err != nil {
		// A corrupted file should not abort the rest of the replay.
		o.logger.Printf("[ERROR] spool: skipping %s: %v", f.path, err)
		return nil
	}

	if err := handler(ctx, b.Spans); err != nil {
		return fmt.Errorf("spool: replaying %s: %w", f.path, err)
	}

	if !o.keepFiles {
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("spool: removing %s: %w", f.path, err)
		}
	}
	return nil
}

func readBatch(path string) (batch, error) {
	var b batch

	f, err := os.Open(path)
	if err != nil {
		return b, err
	}
	defer f.Close()

	if err := json.NewDecoder(lz4.NewReader(f)).Decode(&b); err != nil {
		return b, fmt.Errorf("decoding batch: %w", err)
	}
	return b, nil
}

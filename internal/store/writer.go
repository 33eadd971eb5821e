// Package store persists whole collections as pretty-printed JSON files.
//
// Writes go to a temp file that is fsynced and renamed over the target.
// Busy renames are retried with linear backoff. If the atomic replace keeps
// failing, the writer backs up the target and overwrites it in place; that
// fallback gives up atomicity for availability on filesystems where rename
// is unreliable (some container bind mounts) and is always logged at WARN.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultTimeout    = 10 * time.Second
)

type Options struct {
	// Attempts is the number of atomic replace attempts before falling back.
	Attempts   int
	RetryDelay time.Duration
	// Timeout bounds the whole retry loop.
	Timeout time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Stats counts write outcomes since the writer was created.
type Stats struct {
	AtomicWrites int64 `json:"atomicWrites"`
	Retries      int64 `json:"retries"`
	Fallbacks    int64 `json:"fallbacks"`
	Failures     int64 `json:"failures"`
}

// Writer serializes values to disk. It holds no per-file state and is safe
// for concurrent use; callers serialize writes to the same path.
type Writer struct {
	opts Options

	// seams for tests
	rename         func(oldpath, newpath string) error
	writeDirect    func(path string, data []byte) error
	afterTempWrite func(tmpPath string) error

	seq          atomic.Uint64
	atomicWrites atomic.Int64
	retries      atomic.Int64
	fallbacks    atomic.Int64
	failures     atomic.Int64
}

func NewWriter(opts Options) *Writer {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Writer{opts: opts, rename: os.Rename}
	w.writeDirect = writeFileSync
	return w
}

func (w *Writer) Stats() Stats {
	return Stats{
		AtomicWrites: w.atomicWrites.Load(),
		Retries:      w.retries.Load(),
		Fallbacks:    w.fallbacks.Load(),
		Failures:     w.failures.Load(),
	}
}

// SaveAtomic writes v as indented JSON to path. It returns nil once the data
// is on disk by either strategy, ErrStorageUnavailable on timeout, or a
// *FatalWriteError naming the file when nothing worked.
func (w *Writer) SaveAtomic(ctx context.Context, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, path, err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.opts.Attempts; attempt++ {
		lastErr = w.replace(path, data)
		if lastErr == nil {
			w.atomicWrites.Add(1)
			return nil
		}
		if !isBusy(lastErr) || attempt == w.opts.Attempts {
			break
		}

		w.retries.Add(1)
		delay := time.Duration(attempt) * w.opts.RetryDelay
		w.opts.Logger.Debug().
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(lastErr).
			Msg("file busy, retrying atomic write")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			w.failures.Add(1)
			return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, path, ctx.Err())
		}
	}

	w.opts.Logger.Warn().
		Str("path", path).
		Err(lastErr).
		Msg("atomic write failed, falling back to direct non-atomic overwrite")

	if err := w.fallback(path, data); err != nil {
		w.failures.Add(1)
		w.opts.Logger.Error().Str("path", path).Err(err).Msg("direct write failed")
		return &FatalWriteError{Path: path, Err: err}
	}

	w.fallbacks.Add(1)
	return nil
}

// replace performs one temp-write, fsync, rename cycle.
func (w *Writer) replace(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%d-%d-%d", path, w.opts.Now().UnixNano(), os.Getpid(), w.seq.Add(1))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if w.afterTempWrite != nil {
		if err := w.afterTempWrite(tmp); err != nil {
			return err
		}
	}

	if err := w.rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	syncDir(filepath.Dir(path))
	return nil
}

func (w *Writer) fallback(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		backup := BackupName(path, w.opts.Now())
		if err := copyFile(path, backup); err != nil {
			w.opts.Logger.Warn().Str("path", path).Str("backup", backup).Err(err).
				Msg("could not back up target before direct write")
		} else {
			w.opts.Logger.Warn().Str("path", path).Str("backup", backup).Msg("backed up target before direct write")
		}
	}
	return w.writeDirect(path, data)
}

// BackupName is the timestamped copy created before a direct overwrite.
func BackupName(path string, at time.Time) string {
	return fmt.Sprintf("%s.backup-%s", path, at.UTC().Format("20060102T150405.000000000"))
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// syncDir makes the rename durable. Not supported everywhere, so errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

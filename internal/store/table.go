package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Table is one logical collection persisted as a single JSON file. All
// mutations are serialized by the table's lock and the in-memory value only
// changes after the new value is on disk.
//
// Values handed to Read and Update are shared: callers must copy before
// mutating slices or maps and return a fresh value from Update.
type Table[T any] struct {
	mu     sync.RWMutex
	path   string
	writer *Writer
	log    zerolog.Logger
	value  T
}

// OpenTable loads path into memory. A missing file is seeded with seed() and
// written immediately. An unreadable or corrupt file is moved aside and the
// table starts from empty() rather than refusing to start.
func OpenTable[T any](ctx context.Context, path string, w *Writer, log zerolog.Logger, seed, empty func() T) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	removeStaleTemps(path, log)

	t := &Table[T]{path: path, writer: w, log: log}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		t.value = seed()
		if err := w.SaveAtomic(ctx, path, t.value); err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("initialized data file")
		return t, nil
	}

	value, err := Load[T](path)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
		log.Warn().Str("path", path).Str("moved_to", aside).Err(err).
			Msg("data file unreadable, starting from an empty collection")
		if renameErr := os.Rename(path, aside); renameErr != nil {
			log.Warn().Str("path", path).Err(renameErr).Msg("could not move unreadable data file aside")
		}
		t.value = empty()
		return t, nil
	}

	t.value = value
	return t, nil
}

// Load decodes the JSON file at path.
func Load[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// LoadOrDefault never fails: any read or parse error yields def().
func LoadOrDefault[T any](path string, def func() T) T {
	v, err := Load[T](path)
	if err != nil {
		return def()
	}
	return v
}

func (t *Table[T]) Path() string { return t.path }

// Read runs fn with the current value under the read lock.
func (t *Table[T]) Read(fn func(T)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.value)
}

// Update runs fn under the write lock, persists its result and swaps it in.
// If fn or the write fails the in-memory value is left as it was.
func (t *Table[T]) Update(ctx context.Context, fn func(current T) (T, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := fn(t.value)
	if err != nil {
		return err
	}
	if err := t.writer.SaveAtomic(ctx, t.path, next); err != nil {
		return err
	}
	t.value = next
	return nil
}

// removeStaleTemps deletes temp files left by a process that died between
// writing and renaming. The target itself is never touched.
func removeStaleTemps(path string, log zerolog.Logger) {
	matches, err := filepath.Glob(path + ".tmp-*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), filepath.Base(path)+".tmp-") {
			continue
		}
		if err := os.Remove(m); err == nil {
			log.Info().Str("file", m).Msg("removed stale temp file")
		}
	}
}

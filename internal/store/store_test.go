package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Tags    []string  `json:"tags"`
	Created time.Time `json:"created"`
}

func newTestWriter() *Writer {
	return NewWriter(Options{RetryDelay: time.Millisecond, Logger: zerolog.Nop()})
}

func sampleRecords() []record {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return []record{
		{ID: "1", Title: "Brand refresh", Tags: []string{"identity", "print"}, Created: at},
		{ID: "2", Title: "Motion reel", Tags: []string{}, Created: at.Add(time.Hour)},
	}
}

func TestSaveAtomic_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	w := newTestWriter()

	for name, in := range map[string][]record{
		"populated": sampleRecords(),
		"empty":     {},
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, w.SaveAtomic(context.Background(), path, in))

			out, err := Load[[]record](path)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestSaveAtomic_PrettyPrintsAndLeavesNoTemps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.json")
	w := newTestWriter()

	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {")

	temps, _ := filepath.Glob(path + ".tmp-*")
	assert.Empty(t, temps)
	assert.Equal(t, int64(1), w.Stats().AtomicWrites)
}

func TestReplace_CrashBeforeRenameLeavesTargetUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	w := newTestWriter()
	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	crash := errors.New("process killed")
	w.afterTempWrite = func(string) error { return crash }

	err = w.replace(path, []byte(`[{"id":"partial`))
	require.ErrorIs(t, err, crash)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "target must not change when the writer dies before rename")

	temps, _ := filepath.Glob(path + ".tmp-*")
	assert.Len(t, temps, 1, "the orphaned temp file is what a crash leaves behind")

	// reopening cleans the leftover temp and still sees the old data
	table, err := OpenTable(context.Background(), path, newTestWriter(), zerolog.Nop(),
		func() []record { return nil }, func() []record { return []record{} })
	require.NoError(t, err)
	table.Read(func(v []record) { assert.Equal(t, sampleRecords(), v) })

	temps, _ = filepath.Glob(path + ".tmp-*")
	assert.Empty(t, temps)
}

func TestSaveAtomic_RetriesBusyRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.json")
	w := newTestWriter()

	calls := 0
	w.rename = func(oldpath, newpath string) error {
		calls++
		if calls < 3 {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EBUSY}
		}
		return os.Rename(oldpath, newpath)
	}

	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()))

	assert.Equal(t, 3, calls)
	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Retries)
	assert.Equal(t, int64(1), stats.AtomicWrites)
	assert.Zero(t, stats.Fallbacks)

	temps, _ := filepath.Glob(path + ".tmp-*")
	assert.Empty(t, temps, "failed attempts must clean their temp files")
}

func TestSaveAtomic_BackoffIsLinear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.json")
	w := NewWriter(Options{RetryDelay: 20 * time.Millisecond, Logger: zerolog.Nop()})

	var stamps []time.Time
	w.rename = func(oldpath, newpath string) error {
		stamps = append(stamps, time.Now())
		return syscall.EBUSY
	}

	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()))
	require.Len(t, stamps, DefaultAttempts)

	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestSaveAtomic_FallsBackToDirectWriteWithBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.json")
	w := newTestWriter()
	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()[:1]))
	old, _ := os.ReadFile(path)

	w.rename = func(string, string) error { return syscall.EBUSY }

	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()))

	out, err := Load[[]record](path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), out)

	backups, _ := filepath.Glob(path + ".backup-*")
	require.Len(t, backups, 1)
	backupData, _ := os.ReadFile(backups[0])
	assert.Equal(t, old, backupData)

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Fallbacks)
	assert.Equal(t, int64(DefaultAttempts-1), stats.Retries)
}

func TestSaveAtomic_NonBusyErrorSkipsRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	w := newTestWriter()

	calls := 0
	w.rename = func(string, string) error {
		calls++
		return syscall.EXDEV
	}

	require.NoError(t, w.SaveAtomic(context.Background(), path, sampleRecords()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), w.Stats().Fallbacks)
}

func TestSaveAtomic_FatalWhenDirectWriteFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	w := newTestWriter()
	w.rename = func(string, string) error { return syscall.EBUSY }
	w.writeDirect = func(string, []byte) error { return syscall.EROFS }

	err := w.SaveAtomic(context.Background(), path, sampleRecords())

	var fatal *FatalWriteError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, path, fatal.Path)
	assert.ErrorIs(t, err, syscall.EROFS)
	assert.Contains(t, err.Error(), path)
	assert.Equal(t, int64(1), w.Stats().Failures)
}

func TestSaveAtomic_TimeoutStopsRetryStorm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	w := NewWriter(Options{RetryDelay: time.Hour, Timeout: 30 * time.Millisecond, Logger: zerolog.Nop()})
	w.rename = func(string, string) error { return syscall.EBUSY }

	start := time.Now()
	err := w.SaveAtomic(context.Background(), path, sampleRecords())

	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no fallback write after a timeout")
}

func TestSaveAtomic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestWriter().SaveAtomic(ctx, filepath.Join(t.TempDir(), "x.json"), sampleRecords())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestOpenTable_SeedsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "projects.json")

	table, err := OpenTable(context.Background(), path, newTestWriter(), zerolog.Nop(),
		sampleRecords, func() []record { return []record{} })
	require.NoError(t, err)

	table.Read(func(v []record) { assert.Equal(t, sampleRecords(), v) })

	onDisk, err := Load[[]record](path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), onDisk)
}

func TestOpenTable_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	table, err := OpenTable(context.Background(), path, newTestWriter(), zerolog.Nop(),
		sampleRecords, func() []record { return []record{} })
	require.NoError(t, err)

	table.Read(func(v []record) { assert.Empty(t, v) })

	aside, _ := filepath.Glob(path + ".corrupt-*")
	assert.Len(t, aside, 1)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	def := func() []record { return []record{} }

	assert.Equal(t, []record{}, LoadOrDefault(filepath.Join(dir, "missing.json"), def))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("]"), 0644))
	assert.Equal(t, []record{}, LoadOrDefault(bad, def))
}

func TestTableUpdate_FailureKeepsPreviousValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	w := newTestWriter()
	table, err := OpenTable(context.Background(), path, w, zerolog.Nop(),
		sampleRecords, func() []record { return []record{} })
	require.NoError(t, err)

	boom := errors.New("validation failed")
	err = table.Update(context.Background(), func(cur []record) ([]record, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	w.rename = func(string, string) error { return syscall.EBUSY }
	w.writeDirect = func(string, []byte) error { return syscall.ENOSPC }
	err = table.Update(context.Background(), func(cur []record) ([]record, error) {
		return append(append([]record{}, cur...), record{ID: "3"}), nil
	})
	var fatal *FatalWriteError
	require.ErrorAs(t, err, &fatal)

	table.Read(func(v []record) { assert.Equal(t, sampleRecords(), v) })
}

func TestTableUpdate_ConcurrentWritersAreSerialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	table, err := OpenTable(context.Background(), path, newTestWriter(), zerolog.Nop(),
		func() []record { return []record{} }, func() []record { return []record{} })
	require.NoError(t, err)

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := table.Update(context.Background(), func(cur []record) ([]record, error) {
				return append(append([]record{}, cur...), record{ID: fmt.Sprint(i)}), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	onDisk, err := Load[[]record](path)
	require.NoError(t, err)
	assert.Len(t, onDisk, writers)
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	oldBackup := filepath.Join(dir, "projects.json.backup-20240101T000000.000000000")
	newBackup := filepath.Join(dir, "projects.json.backup-20990101T000000.000000000")
	data := filepath.Join(dir, "projects.json")
	for _, p := range []string{oldBackup, newBackup, data} {
		require.NoError(t, os.WriteFile(p, []byte("[]"), 0644))
	}
	past := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldBackup, past, past))

	removed, err := PruneBackups(dir, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{oldBackup}, removed)
	assert.FileExists(t, newBackup)
	assert.FileExists(t, data)
}

func TestBackupName(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, "/data/media.json.backup-20240506T070809.000000000", BackupName("/data/media.json", at))
}

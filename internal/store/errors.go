package store

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrStorageUnavailable is returned when a write could not complete within
// the operation timeout or the caller's context ended first.
var ErrStorageUnavailable = errors.New("storage unavailable")

// FatalWriteError means both the atomic replace and the direct-write fallback
// failed. The in-memory change must be discarded and the failure surfaced.
type FatalWriteError struct {
	Path string
	Err  error
}

func (e *FatalWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *FatalWriteError) Unwrap() error { return e.Err }

// isBusy reports whether err is the transient "resource busy" class that is
// worth retrying, as seen on bind mounts and files held open by scanners.
func isBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}

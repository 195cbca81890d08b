package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileLocker holds the lock as an exclusively created file. A file older than
// the TTL is considered abandoned and taken over.
type FileLocker struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

// NewFileLocker creates a FileLocker on path.
func NewFileLocker(path string, ttl time.Duration) *FileLocker {
	return &FileLocker{path: path, ttl: ttl, now: time.Now}
}

// Acquire implements Locker.
func (l *FileLocker) Acquire(ctx context.Context) (Unlock, error) {
	token := uuid.NewString()

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%s\n%d\n%s\n", token, os.Getpid(), l.now().UTC().Format(time.RFC3339))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return l.unlock(token), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		info, statErr := os.Stat(l.path)
		if statErr != nil || l.now().Sub(info.ModTime()) <= l.ttl {
			break
		}
		// Abandoned by a crashed run
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, l.path)
}

func (l *FileLocker) unlock(token string) Unlock {
	return func(ctx context.Context) error {
		raw, err := os.ReadFile(l.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read lock file: %w", err)
		}
		if first, _, _ := strings.Cut(string(raw), "\n"); first != token {
			return fmt.Errorf("lock file %s is held by another run", l.path)
		}
		return os.Remove(l.path)
	}
}

// Package instance guards against two processes driving the same item
// store at once.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const DefaultPath = "./mangabot.lock"

// ErrLocked means another process holds the lock.
var ErrLocked = errors.New("another mangabot instance holds the lock")

// Lock is an advisory file lock. The zero value is not usable; see Acquire.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the lock at path without blocking. An empty path uses
// DefaultPath.
func Acquire(path string) (*Lock, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("lock dir: %w", err)
		}
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return &Lock{path: path, fl: fl}, nil
}

func (l *Lock) Path() string { return l.path }

// Release unlocks. The lock file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Package locking provides the named advisory file lock that serializes
// access to the shared rule and bookmark files of one cluster instance.
package locking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/cluster-log-guard/internal/observability"
	"github.com/SteelMorgan/cluster-log-guard/internal/retry"
)

// ErrLockBusy is returned by a single acquisition attempt when another
// process holds the lock
var ErrLockBusy = errors.New("advisory lock is held by another process")

// Lock is a named advisory lock backed by flock(2) on a file in a shared directory.
// Every critical section opens its own file descriptor, so the lock also
// excludes goroutines of the same process.
type Lock struct {
	path  string
	retry retry.Config
}

// New creates the lock for cluster instance `instance` inside lockDir.
// timeout bounds how long With waits for the lock.
func New(lockDir, instance string, timeout time.Duration) *Lock {
	cfg := retry.DefaultConfig()
	cfg.RetryableErrors = []error{ErrLockBusy}
	if timeout > 0 {
		cfg.MaxElapsed = timeout
	}
	return &Lock{
		path:  filepath.Join(lockDir, fmt.Sprintf("ignore_rules_%s.lock", instance)),
		retry: cfg,
	}
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// With acquires the lock, runs fn and releases the lock before returning
func (l *Lock) With(ctx context.Context, fn func() error) (err error) {
	fl, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := fl.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("failed to release lock %s: %w", l.path, unlockErr)
		}
	}()

	return fn()
}

func (l *Lock) acquire(ctx context.Context) (*flock.Flock, error) {
	ctx, span := observability.StartSpan(ctx, "lock.acquire", attribute.String("lock.path", l.path))

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		err = fmt.Errorf("failed to create lock directory: %w", err)
		observability.EndSpan(span, err, "lock directory")
		return nil, err
	}

	fl := flock.New(l.path)
	err := retry.Do(ctx, l.retry, func() error {
		locked, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if !locked {
			return ErrLockBusy
		}
		return nil
	})
	if err != nil {
		_ = fl.Close()
		log.Warn().
			Err(err).
			Str("lock", l.path).
			Msg("Failed to acquire advisory lock")
		observability.EndSpan(span, err, "lock not acquired")
		return nil, err
	}

	observability.EndSpan(span, nil, "lock acquired")
	return fl, nil
}

package offset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/locking"
)

const (
	sidecarSuffix = ".offset"
	// infix of temporary files written next to a sidecar before rename
	tmpInfix = ".tmp."
)

var errInvalidBookmark = errors.New("invalid bookmark")

// SidecarStore implements BookmarkStore with one hidden `.<name>.offset` file
// next to every monitored log file. The file holds the byte offset as a single
// text line; its modification time is the bookmark timestamp.
type SidecarStore struct {
	lock *locking.Lock
}

// NewSidecarStore creates a bookmark store guarded by lock
func NewSidecarStore(lock *locking.Lock) *SidecarStore {
	return &SidecarStore{lock: lock}
}

// SidecarPath returns the bookmark file path for a log file
func SidecarPath(logPath string) string {
	return filepath.Join(filepath.Dir(logPath), "."+filepath.Base(logPath)+sidecarSuffix)
}

// Get retrieves the bookmark for a given log file
func (s *SidecarStore) Get(ctx context.Context, logPath string) (domain.Bookmark, bool, error) {
	var (
		bm domain.Bookmark
		ok bool
	)
	err := s.lock.With(ctx, func() error {
		var err error
		bm, ok, err = readSidecar(SidecarPath(logPath))
		return err
	})
	if err != nil {
		return domain.Bookmark{}, false, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return bm, ok, nil
}

// Set stores the bookmark for a given log file
func (s *SidecarStore) Set(ctx context.Context, logPath string, bm domain.Bookmark) error {
	err := s.lock.With(ctx, func() error {
		return writeSidecar(SidecarPath(logPath), bm)
	})
	if err != nil {
		return fmt.Errorf("failed to set bookmark: %w", err)
	}

	log.Debug().
		Str("file_path", logPath).
		Int64("offset", bm.Offset).
		Msg("Bookmark updated")

	return nil
}

// Claim atomically replaces the bookmark with the current end of file and
// returns the previous one together with the claimed offset
func (s *SidecarStore) Claim(ctx context.Context, logPath string) (domain.Bookmark, int64, bool, error) {
	var (
		prev domain.Bookmark
		ok   bool
		eof  int64
	)
	err := s.lock.With(ctx, func() error {
		stat, err := os.Stat(logPath)
		if err != nil {
			return fmt.Errorf("failed to stat log file: %w", err)
		}
		eof = stat.Size()

		sidecar := SidecarPath(logPath)
		prev, ok, err = readSidecar(sidecar)
		if errors.Is(err, errInvalidBookmark) {
			// the file was last read up to an unknown offset: rescan it
			log.Warn().
				Err(err).
				Str("file_path", logPath).
				Msg("Discarding unreadable bookmark")
			prev, ok = domain.Bookmark{}, false
		} else if err != nil {
			return err
		}
		return writeSidecar(sidecar, domain.Bookmark{Offset: eof})
	})
	if err != nil {
		return domain.Bookmark{}, 0, false, fmt.Errorf("failed to claim bookmark: %w", err)
	}

	log.Debug().
		Str("file_path", logPath).
		Int64("prev_offset", prev.Offset).
		Int64("offset", eof).
		Msg("Bookmark claimed")

	return prev, eof, ok, nil
}

// Delete removes the bookmark for a given log file
func (s *SidecarStore) Delete(ctx context.Context, logPath string) error {
	err := s.lock.With(ctx, func() error {
		err := os.Remove(SidecarPath(logPath))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// List returns all bookmarks stored in dir
func (s *SidecarStore) List(ctx context.Context, dir string) (map[string]domain.Bookmark, error) {
	result := make(map[string]domain.Bookmark)

	err := s.lock.With(ctx, func() error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, sidecarSuffix) {
				continue
			}
			bm, ok, err := readSidecar(filepath.Join(dir, name))
			if errors.Is(err, errInvalidBookmark) {
				log.Warn().Err(err).Msg("Skipping unreadable bookmark")
				continue
			}
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			logName := strings.TrimSuffix(strings.TrimPrefix(name, "."), sidecarSuffix)
			result[filepath.Join(dir, logName)] = bm
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}

	return result, nil
}

// readSidecar parses a bookmark file. A missing file is not an error.
func readSidecar(path string) (domain.Bookmark, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Bookmark{}, false, nil
	}
	if err != nil {
		return domain.Bookmark{}, false, err
	}

	firstLine, _, _ := strings.Cut(string(data), "\n")
	offset, err := strconv.ParseInt(strings.TrimSpace(firstLine), 10, 64)
	if err != nil || offset < 0 {
		return domain.Bookmark{}, false, fmt.Errorf("%w %s: %q", errInvalidBookmark, path, firstLine)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return domain.Bookmark{}, false, err
	}

	return domain.Bookmark{Offset: offset, Timestamp: stat.ModTime()}, true, nil
}

// writeSidecar replaces the bookmark file atomically: a crash leaves either
// the old or the new bookmark, never a truncated one
func writeSidecar(path string, bm domain.Bookmark) error {
	if bm.Offset < 0 {
		return fmt.Errorf("negative offset %d", bm.Offset)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tmpInfix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(strconv.FormatInt(bm.Offset, 10) + "\n"); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if !bm.Timestamp.IsZero() {
		if err := os.Chtimes(tmpName, bm.Timestamp, bm.Timestamp); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

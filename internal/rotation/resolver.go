// Package rotation maps a bookmark recorded against a live log file onto the
// physical files that hold the artifact content now.
//
// Rotation renames the live file to `<base>.<N>` (optionally gzip-compressed as
// `<base>.<N>.gz`) and starts a fresh `<base>`. A bookmark offset therefore
// belongs to the oldest incarnation modified after the bookmark was taken, or
// to the live file when nothing was rotated since; every newer incarnation is
// read from the start.
package rotation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
)

var (
	rotatedRe = regexp.MustCompile(`^.+\.[0-9]+(\.gz)?$`)
	suffixRe  = regexp.MustCompile(`^\.([0-9]+)(\.gz)?$`)
)

// IsRotated reports whether a file name denotes a rotated copy
func IsRotated(name string) bool {
	return rotatedRe.MatchString(filepath.Base(name))
}

// IsCompressed reports whether a segment is stored gzip-compressed
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

type incarnation struct {
	path    string
	modTime time.Time
	// rotation index, 0 for the live file
	index int
	live  bool
}

// Resolve returns the segments of the artifact at logPath that may hold
// content written after the bookmark (lastOffset, lastTimestamp), oldest
// first. Only the oldest segment resumes at lastOffset.
//
// Rotated copies are kept when modified strictly after lastTimestamp. The
// live file is always kept while it exists: its mtime can equal the bookmark
// timestamp within one filesystem clock tick, and callers bound it by offset.
func Resolve(logPath string, lastOffset int64, lastTimestamp time.Time) ([]domain.RotatedSegment, error) {
	return resolve(logPath, lastOffset, func(mtime time.Time) bool {
		return mtime.After(lastTimestamp)
	})
}

// ResolveInclusive is Resolve with rotated copies modified exactly at
// lastTimestamp kept as well. It suits searches where reading a range twice
// is harmless but missing one is not.
func ResolveInclusive(logPath string, lastOffset int64, lastTimestamp time.Time) ([]domain.RotatedSegment, error) {
	return resolve(logPath, lastOffset, func(mtime time.Time) bool {
		return !mtime.Before(lastTimestamp)
	})
}

func resolve(logPath string, lastOffset int64, keepRotated func(time.Time) bool) ([]domain.RotatedSegment, error) {
	found, err := incarnations(logPath)
	if err != nil {
		return nil, err
	}

	kept := found[:0]
	for _, inc := range found {
		if inc.live || keepRotated(inc.modTime) {
			kept = append(kept, inc)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	// newest first: the live file, then by mtime; on equal mtimes a lower
	// rotation index is newer
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].live != kept[j].live {
			return kept[i].live
		}
		if !kept[i].modTime.Equal(kept[j].modTime) {
			return kept[i].modTime.After(kept[j].modTime)
		}
		return kept[i].index < kept[j].index
	})

	segments := make([]domain.RotatedSegment, len(kept))
	for i, inc := range kept {
		segments[len(kept)-1-i] = domain.RotatedSegment{
			Path:       inc.path,
			ModifiedAt: inc.modTime,
		}
	}
	segments[0].ResumeOffset = lastOffset

	return segments, nil
}

// incarnations lists the live file and its rotated copies
func incarnations(logPath string) ([]incarnation, error) {
	dir, base := filepath.Split(logPath)
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var result []incarnation
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		index := 0
		if name != base {
			if !strings.HasPrefix(name, base) {
				continue
			}
			m := suffixRe.FindStringSubmatch(name[len(base):])
			if m == nil {
				continue
			}
			index, err = strconv.Atoi(m[1])
			if err != nil {
				continue
			}
		}

		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// removed by rotation cleanup after listing
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}

		result = append(result, incarnation{
			path:    filepath.Join(dir, name),
			modTime: info.ModTime(),
			index:   index,
			live:    name == base,
		})
	}

	return result, nil
}

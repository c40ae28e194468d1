package offset

import (
	"context"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
)

// BookmarkStore stores and retrieves scan progress of log artifacts.
// Keys are paths of live log files.
type BookmarkStore interface {
	// Get retrieves the bookmark for a given log file.
	// ok is false when no bookmark was stored yet.
	Get(ctx context.Context, logPath string) (bm domain.Bookmark, ok bool, err error)

	// Set stores the bookmark for a given log file.
	// A zero Timestamp means "now" as seen by the filesystem.
	Set(ctx context.Context, logPath string, bm domain.Bookmark) error

	// Claim atomically reads the previous bookmark and replaces it with one
	// pointing at the current end of the live file, which is returned as claimed
	Claim(ctx context.Context, logPath string) (prev domain.Bookmark, claimed int64, ok bool, err error)

	// Delete removes the bookmark for a given log file
	Delete(ctx context.Context, logPath string) error

	// List returns all bookmarks stored in a directory, keyed by log file path
	List(ctx context.Context, dir string) (map[string]domain.Bookmark, error)
}

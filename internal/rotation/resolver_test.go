package rotation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestIsRotated(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "node.stdout", want: false},
		{name: "node.stdout.1", want: true},
		{name: "node.stdout.12", want: true},
		{name: "node.stdout.3.gz", want: true},
		{name: "/state/pool1.2/node.stdout", want: false},
		{name: ".node.stdout.offset", want: false},
		{name: "node.stdout.gz", want: false},
	}

	for _, tt := range tests {
		if got := IsRotated(tt.name); got != tt.want {
			t.Errorf("IsRotated(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResolveNoBookmark(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")
	writeFile(t, live, "ok\n", base)

	segments, err := Resolve(live, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, live, segments[0].Path)
	require.Equal(t, int64(0), segments[0].ResumeOffset)
}

func TestResolveLiveFileAlwaysKept(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")

	tests := []struct {
		name  string
		mtime time.Time
	}{
		{name: "older than bookmark", mtime: base.Add(-time.Second)},
		{name: "same clock tick as bookmark", mtime: base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFile(t, live, "ok\nERROR: same tick\n", tt.mtime)

			segments, err := Resolve(live, 3, base)
			require.NoError(t, err)
			require.Len(t, segments, 1)
			require.Equal(t, live, segments[0].Path)
			require.Equal(t, int64(3), segments[0].ResumeOffset)
		})
	}
}

func TestResolveRotatedTie(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")
	writeFile(t, live+".1", "0123456789tail\n", base)
	writeFile(t, live, "fresh\n", base.Add(time.Second))

	segments, err := Resolve(live, 10, base)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, live, segments[0].Path)

	segments, err = ResolveInclusive(live, 10, base)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	require.Equal(t, live+".1", segments[0].Path)
	require.Equal(t, int64(10), segments[0].ResumeOffset)
	require.Equal(t, live, segments[1].Path)
	require.Equal(t, int64(0), segments[1].ResumeOffset)
}

func TestResolveZeroIndexIsNotLive(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")
	writeFile(t, live+".0", "rotated\n", base.Add(-time.Minute))
	writeFile(t, live, "live\n", base.Add(-time.Minute))

	segments, err := Resolve(live, 5, base)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, live, segments[0].Path)
}

func TestResolveWithoutRotation(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")
	writeFile(t, live, "ok\nnew\n", base.Add(2*time.Second))
	// older rotated copy already accounted for
	writeFile(t, live+".1", "old\n", base.Add(-time.Hour))

	segments, err := Resolve(live, 3, base)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, live, segments[0].Path)
	require.Equal(t, int64(3), segments[0].ResumeOffset)
}

func TestResolveReassignsOffsetAfterRotation(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")

	// bookmark taken at `base` with offset K against the then-live file,
	// which was rotated to node.stdout.1 after more appends
	const k = int64(10)
	writeFile(t, live+".1", "0123456789tail-before-rotation\n", base.Add(1*time.Second))
	writeFile(t, live, "fresh\n", base.Add(2*time.Second))

	segments, err := Resolve(live, k, base)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	require.Equal(t, live+".1", segments[0].Path)
	require.Equal(t, k, segments[0].ResumeOffset)
	require.Equal(t, live, segments[1].Path)
	require.Equal(t, int64(0), segments[1].ResumeOffset)
}

func TestResolveMultipleRotations(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")

	writeFile(t, live+".3", "ancient\n", base.Add(-time.Minute))
	writeFile(t, live+".2.gz", "older\n", base.Add(1*time.Second))
	writeFile(t, live+".1", "newer\n", base.Add(2*time.Second))
	writeFile(t, live, "live\n", base.Add(3*time.Second))
	// not incarnations of node.stdout
	writeFile(t, filepath.Join(dir, "node.stdout_other"), "x\n", base.Add(time.Hour))
	writeFile(t, filepath.Join(dir, "node.stdout.bak"), "x\n", base.Add(time.Hour))

	segments, err := Resolve(live, 5, base)
	require.NoError(t, err)

	var paths []string
	for _, s := range segments {
		paths = append(paths, filepath.Base(s.Path))
	}
	require.Equal(t, []string{"node.stdout.2.gz", "node.stdout.1", "node.stdout"}, paths)
	require.Equal(t, int64(5), segments[0].ResumeOffset)
	require.Equal(t, int64(0), segments[1].ResumeOffset)
	require.Equal(t, int64(0), segments[2].ResumeOffset)
}

func TestResolveEqualMtimesOrderByIndex(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "node.stdout")
	mtime := base.Add(time.Second)

	writeFile(t, live, "live\n", mtime)
	writeFile(t, live+".1", "one\n", mtime)
	writeFile(t, live+".2", "two\n", mtime)

	segments, err := Resolve(live, 7, base)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	require.Equal(t, live+".2", segments[0].Path)
	require.Equal(t, int64(7), segments[0].ResumeOffset)
	require.Equal(t, live, segments[2].Path)
}

func TestResolveDeletedLiveFile(t *testing.T) {
	dir := t.TempDir()

	segments, err := Resolve(filepath.Join(dir, "node.stdout"), 100, base)
	require.NoError(t, err)
	require.Empty(t, segments)
}

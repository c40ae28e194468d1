package expect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/locking"
	"github.com/SteelMorgan/cluster-log-guard/internal/rules"
)

func newTestVerifier(t *testing.T) (*Verifier, *rules.Store, string) {
	t.Helper()
	root := t.TempDir()
	stateDir := filepath.Join(root, "state")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	lock := locking.New(filepath.Join(root, "locks"), "0", 5*time.Second)
	store := rules.NewStore(stateDir, lock)
	return NewVerifier(stateDir, store), store, stateDir
}

// write appends content and moves the mtime past the scope start
func write(t *testing.T, path, content string, after time.Duration) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	mtime := time.Now().Add(after)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func writeOld(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	mtime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

var myPairs = []domain.RegexPair{{FileGlob: "*.stdout", Regex: "MyExpectedError"}}

func TestRunSatisfied(t *testing.T) {
	v, store, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	writeOld(t, logPath, "ok\n")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error {
		write(t, logPath, "[node] MyExpectedError: submit failed\n", 2*time.Second)
		return nil
	})
	require.NoError(t, err)

	ignoreRules, err := store.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.IgnoreRule{{FileGlob: "*.stdout", Regex: "MyExpectedError"}}, ignoreRules)
}

func appendNow(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestRunSatisfiedRealClock(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	appendNow(t, logPath, "ok\n")

	for i := 0; i < 20; i++ {
		err := v.Run(context.Background(), myPairs, fmt.Sprintf("g%d", i), func(ctx context.Context) error {
			appendNow(t, logPath, "[node] MyExpectedError: submit failed\n")
			return nil
		})
		require.NoError(t, err, "iteration %d", i)
	}

	err := v.Run(context.Background(), myPairs, "late", func(ctx context.Context) error {
		appendNow(t, logPath, "unrelated\n")
		return nil
	})
	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
}

func TestRunRotatedInEntryTick(t *testing.T) {
	v, store, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	writeOld(t, logPath, "old\n")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error {
		appendNow(t, logPath, "MyExpectedError\n")
		// rotated copy keeps the mtime of the scope start
		entry, err := os.Stat(store.GroupPath("g1"))
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(logPath, entry.ModTime(), entry.ModTime()))
		require.NoError(t, os.Rename(logPath, logPath+".1"))
		appendNow(t, logPath, "after rotation\n")
		return nil
	})
	require.NoError(t, err)
}

func TestRunFailsWithoutLine(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	writeOld(t, logPath, "MyExpectedError from an earlier test\n")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error {
		write(t, logPath, "unrelated\n", 2*time.Second)
		return nil
	})
	require.Error(t, err)

	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
	require.Equal(t, "MyExpectedError", expErr.Regex)
	require.Equal(t, "*.stdout", expErr.Glob)
	require.Equal(t, []string{logPath}, expErr.Files)
	require.Contains(t, err.Error(), "MyExpectedError")
}

func TestRunUntouchedFileFails(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	writeOld(t, filepath.Join(stateDir, "node.stdout"), "ok\n")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error { return nil })

	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
}

func TestRunFindsLineInRotatedCopy(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	writeOld(t, logPath, "old\n")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error {
		write(t, logPath, "MyExpectedError\n", 2*time.Second)
		require.NoError(t, os.Rename(logPath, logPath+".1"))
		write(t, logPath, "after rotation\n", 3*time.Second)
		return nil
	})
	require.NoError(t, err)
}

func TestRunIgnoresContentBeforeOffsetInRotatedCopy(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	writeOld(t, logPath, "MyExpectedError before scope\n")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error {
		write(t, logPath, "noise\n", 2*time.Second)
		require.NoError(t, os.Rename(logPath, logPath+".1"))
		write(t, logPath, "after rotation\n", 3*time.Second)
		return nil
	})

	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
}

func TestRunFileCreatedDuringScope(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error {
		write(t, filepath.Join(stateDir, "pool1.stdout"), "MyExpectedError\n", 2*time.Second)
		return nil
	})
	require.NoError(t, err)
}

func TestRunGlobMatchesNothing(t *testing.T) {
	v, _, _ := newTestVerifier(t)

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error { return nil })

	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
	require.Empty(t, expErr.Files)
	require.Contains(t, err.Error(), "*.stdout")
}

func TestRunMultiplePairs(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	stdout := filepath.Join(stateDir, "node.stdout")
	stderr := filepath.Join(stateDir, "node.stderr")
	writeOld(t, stdout, "")
	writeOld(t, stderr, "")

	pairs := []domain.RegexPair{
		{FileGlob: "*.stdout", Regex: "first"},
		{FileGlob: "*.stderr", Regex: "sec.nd"},
	}

	err := v.Run(context.Background(), pairs, "g1", func(ctx context.Context) error {
		write(t, stdout, "first\n", 2*time.Second)
		write(t, stderr, "second\n", 2*time.Second)
		return nil
	})
	require.NoError(t, err)

	err = v.Run(context.Background(), pairs, "g2", func(ctx context.Context) error {
		write(t, stdout, "first\n", 4*time.Second)
		return nil
	})
	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
	require.Equal(t, "sec.nd", expErr.Regex)
}

func TestRunActionError(t *testing.T) {
	v, store, _ := newTestVerifier(t)
	want := errors.New("cli failed")

	err := v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error { return want })
	require.ErrorIs(t, err, want)

	// no rollback of registered rules
	ignoreRules, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ignoreRules, 1)
}

func TestRunPanicPropagates(t *testing.T) {
	v, _, _ := newTestVerifier(t)

	require.PanicsWithValue(t, "boom", func() {
		_ = v.Run(context.Background(), myPairs, "g1", func(ctx context.Context) error { panic("boom") })
	})
}

func TestScopeStates(t *testing.T) {
	v, _, stateDir := newTestVerifier(t)
	logPath := filepath.Join(stateDir, "node.stdout")
	writeOld(t, logPath, "")
	ctx := context.Background()

	scope, err := v.Enter(ctx, myPairs, "g1")
	require.NoError(t, err)
	require.Equal(t, Armed, scope.State())

	write(t, logPath, "MyExpectedError\n", 2*time.Second)

	require.NoError(t, scope.Exit(ctx, nil))
	require.Equal(t, Satisfied, scope.State())
	require.ErrorIs(t, scope.Exit(ctx, nil), ErrScopeClosed)

	failing, err := v.Enter(ctx, []domain.RegexPair{{FileGlob: "*.stdout", Regex: "never"}}, "g2")
	require.NoError(t, err)
	require.Error(t, failing.Exit(ctx, nil))
	require.Equal(t, Failed, failing.State())
}

func TestEnterRejectsInvalidRegex(t *testing.T) {
	v, store, _ := newTestVerifier(t)

	_, err := v.Enter(context.Background(), []domain.RegexPair{{FileGlob: "*", Regex: "bad("}}, "g1")
	require.Error(t, err)

	ignoreRules, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, ignoreRules)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Armed, "armed"},
		{Verifying, "verifying"},
		{Satisfied, "satisfied"},
		{Failed, "failed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State.String() = %q, want %q", got, tt.want)
		}
	}
}

// Package logguard is the entry point for test harnesses that watch the log
// artifacts of a local cluster instance.
//
// A Guard is created once per cluster instance. It owns the advisory lock and
// the file layout of the shared state directory:
//
//	<state>/<name>.stdout               live log file (any name matching the log glob)
//	<state>/<name>.stdout.<N>[.gz]      rotated copies
//	<state>/.<name>.stdout.offset       bookmark: byte offset, mtime = last sweep
//	<state>/.errors_rules_<group>       ignore rules, one "glob;;regex" per line
//	<lockdir>/ignore_rules_<instance>.lock
//
// Any number of processes may share one state directory; every
// read-modify-write of bookmarks and rules happens under the lock.
package logguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/SteelMorgan/cluster-log-guard/internal/baseline"
	"github.com/SteelMorgan/cluster-log-guard/internal/config"
	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/expect"
	"github.com/SteelMorgan/cluster-log-guard/internal/locking"
	"github.com/SteelMorgan/cluster-log-guard/internal/normalizer"
	"github.com/SteelMorgan/cluster-log-guard/internal/offset"
	"github.com/SteelMorgan/cluster-log-guard/internal/rules"
	"github.com/SteelMorgan/cluster-log-guard/internal/sweep"
)

type (
	OffendingLine    = domain.OffendingLine
	IgnoreRule       = domain.IgnoreRule
	RegexPair        = domain.RegexPair
	Bookmark         = domain.Bookmark
	ErrorGroup       = domain.ErrorGroup
	Scope            = expect.Scope
	ExpectationError = expect.ExpectationError
	ArtifactErrors   = sweep.ArtifactErrors
)

// Options configures a Guard
type Options struct {
	StateDir    string
	Instance    string        // defaults to "0"
	LockDir     string        // defaults to the OS temp dir
	LockTimeout time.Duration // defaults to 30s
	LogGlob     string        // defaults to "*.std*"
	Baseline    *baseline.Baseline
}

// Guard bundles the stores, the sweep scanner and the expectation verifier of
// one cluster instance
type Guard struct {
	stateDir  string
	lock      *locking.Lock
	rules     *rules.Store
	bookmarks *offset.SidecarStore
	scanner   *sweep.Scanner
	verifier  *expect.Verifier
	lines     *normalizer.LineNormalizer
}

// New creates a Guard for opts.StateDir
func New(opts Options) (*Guard, error) {
	if opts.StateDir == "" {
		return nil, fmt.Errorf("state dir is required")
	}
	if info, err := os.Stat(opts.StateDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("state dir %q is not a directory", opts.StateDir)
	}
	if opts.Instance == "" {
		opts.Instance = "0"
	}
	if opts.LockDir == "" {
		opts.LockDir = os.TempDir()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}

	lock := locking.New(opts.LockDir, opts.Instance, opts.LockTimeout)
	ruleStore := rules.NewStore(opts.StateDir, lock)
	bookmarks := offset.NewSidecarStore(lock)

	return &Guard{
		stateDir:  opts.StateDir,
		lock:      lock,
		rules:     ruleStore,
		bookmarks: bookmarks,
		scanner:   sweep.NewScanner(opts.StateDir, opts.LogGlob, bookmarks, ruleStore, opts.Baseline),
		verifier:  expect.NewVerifier(opts.StateDir, ruleStore),
		lines:     normalizer.NewLineNormalizer(),
	}, nil
}

// FromConfig creates a Guard from application configuration
func FromConfig(cfg *config.Config) (*Guard, error) {
	base, err := baseline.Load(cfg.BaselinePath)
	if err != nil {
		return nil, err
	}
	return New(Options{
		StateDir:    cfg.StateDir,
		Instance:    cfg.Instance,
		LockDir:     cfg.LockDir,
		LockTimeout: cfg.LockTimeout,
		LogGlob:     cfg.LogGlob,
		Baseline:    base,
	})
}

// StateDir returns the monitored state directory
func (g *Guard) StateDir() string {
	return g.stateDir
}

// LockPath returns the advisory lock file of this instance
func (g *Guard) LockPath() string {
	return g.lock.Path()
}

// Sweep returns unexpected error lines written since the previous sweep.
// On a partial failure the lines found so far are returned with the error.
func (g *Guard) Sweep(ctx context.Context) ([]OffendingLine, error) {
	return g.scanner.Sweep(ctx)
}

// Report turns a non-empty sweep result into an *ArtifactErrors
func (g *Guard) Report(lines []OffendingLine) error {
	return sweep.Report(lines)
}

// Summarize groups offending lines that differ only in ids, numbers,
// addresses or timestamps
func (g *Guard) Summarize(lines []OffendingLine) []ErrorGroup {
	return g.lines.Summarize(lines)
}

// CheckArtifacts sweeps and reports in one call. Sweep failures and found
// lines are both part of the returned error.
func (g *Guard) CheckArtifacts(ctx context.Context) error {
	lines, err := g.Sweep(ctx)
	return errors.Join(g.Report(lines), err)
}

// ExpectErrors runs action inside a scoped expectation: pairs are ignored by
// sweeps from now on and must show up in the logs while action runs.
// The rule group stays registered; remove it with DeleteRuleGroup.
func (g *Guard) ExpectErrors(ctx context.Context, pairs []RegexPair, groupID string, action func(context.Context) error) error {
	return g.verifier.Run(ctx, pairs, groupID, action)
}

// EnterExpectation opens a scope for callers that cannot wrap their action
// in a function. Scope.Exit must be called on every path.
func (g *Guard) EnterExpectation(ctx context.Context, pairs []RegexPair, groupID string) (*Scope, error) {
	return g.verifier.Enter(ctx, pairs, groupID)
}

// AddIgnoreRule registers a rule in groupID
func (g *Guard) AddIgnoreRule(ctx context.Context, glob, regex, groupID string) error {
	return g.rules.Add(ctx, glob, regex, groupID)
}

// DeleteRuleGroup removes every rule of groupID; a missing group is not an error
func (g *Guard) DeleteRuleGroup(ctx context.Context, groupID string) error {
	return g.rules.DeleteGroup(ctx, groupID)
}

// IgnoreRules returns the distinct rules of all groups
func (g *Guard) IgnoreRules(ctx context.Context) ([]IgnoreRule, error) {
	return g.rules.List(ctx)
}

// RuleGroups returns the ids of all registered rule groups
func (g *Guard) RuleGroups(ctx context.Context) ([]string, error) {
	return g.rules.Groups(ctx)
}

// Bookmarks returns the scan progress of every log file in the state directory
func (g *Guard) Bookmarks(ctx context.Context) (map[string]Bookmark, error) {
	return g.bookmarks.List(ctx, g.stateDir)
}

// ResetBookmark forgets the scan progress of logPath; the next sweep scans
// it from the beginning
func (g *Guard) ResetBookmark(ctx context.Context, logPath string) error {
	return g.bookmarks.Delete(ctx, logPath)
}

// NewGroupID returns a fresh random rule group id
func NewGroupID() string {
	return uuid.NewString()
}

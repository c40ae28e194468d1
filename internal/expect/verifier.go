// Package expect implements scoped expectations: a bracket around a caller
// action that declares which error patterns are expected in which log files.
// On entry the patterns are registered as ignore rules so sweeps do not
// report them; on exit every pattern must be found in content written while
// the scope was open.
package expect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/logreader"
	"github.com/SteelMorgan/cluster-log-guard/internal/observability"
	"github.com/SteelMorgan/cluster-log-guard/internal/rotation"
)

// ErrScopeClosed is returned when Exit is called on a scope that already exited
var ErrScopeClosed = errors.New("expectation scope already closed")

// State of a scope
type State int

const (
	Idle State = iota
	Armed
	Verifying
	Satisfied
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Verifying:
		return "verifying"
	case Satisfied:
		return "satisfied"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ExpectationError reports an expected pattern that never showed up
type ExpectationError struct {
	Regex string
	Glob  string
	Files []string // files searched, empty when the glob matched nothing
}

func (e *ExpectationError) Error() string {
	if len(e.Files) == 0 {
		return fmt.Sprintf("No line matching `%s` found: no file matches '%s'", e.Regex, e.Glob)
	}
	return fmt.Sprintf("No line matching `%s` found in files matching '%s' (%s)",
		e.Regex, e.Glob, strings.Join(e.Files, ", "))
}

// RuleRegistrar registers ignore rules for a scope
type RuleRegistrar interface {
	Add(ctx context.Context, glob, regex, groupID string) error
	GroupPath(groupID string) string
}

// Verifier opens expectation scopes over one state directory
type Verifier struct {
	stateDir string
	rules    RuleRegistrar
}

// NewVerifier creates a verifier for stateDir
func NewVerifier(stateDir string, rules RuleRegistrar) *Verifier {
	return &Verifier{stateDir: stateDir, rules: rules}
}

// Scope is one open expectation region
type Scope struct {
	v         *Verifier
	pairs     []domain.RegexPair
	compiled  []*regexp.Regexp
	groupID   string
	offsets   map[string]int64
	timestamp time.Time

	mu    sync.Mutex
	state State
}

// Enter registers every pair as an ignore rule of groupID and snapshots the
// end of every file matching any glob. Rules already registered stay
// registered if a later step fails.
func (v *Verifier) Enter(ctx context.Context, pairs []domain.RegexPair, groupID string) (*Scope, error) {
	compiled := make([]*regexp.Regexp, len(pairs))
	for i, p := range pairs {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid expected regex %q: %w", p.Regex, err)
		}
		if _, err := filepath.Match(p.FileGlob, ""); err != nil {
			return nil, fmt.Errorf("invalid file glob %q: %w", p.FileGlob, err)
		}
		compiled[i] = re
	}

	for _, p := range pairs {
		if err := v.rules.Add(ctx, p.FileGlob, p.Regex, groupID); err != nil {
			return nil, err
		}
	}

	s := &Scope{
		v:        v,
		pairs:    pairs,
		compiled: compiled,
		groupID:  groupID,
		offsets:  make(map[string]int64),
		state:    Armed,
	}

	s.timestamp = v.clock(groupID)

	for _, p := range pairs {
		files, err := v.liveFiles(p.FileGlob)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, ok := s.offsets[f]; ok {
				continue
			}
			stat, err := os.Stat(f)
			if err != nil {
				continue
			}
			s.offsets[f] = stat.Size()
		}
	}

	log.Debug().
		Str("group_id", groupID).
		Int("pairs", len(pairs)).
		Int("files", len(s.offsets)).
		Time("timestamp", s.timestamp).
		Msg("Expectation scope armed")

	return s, nil
}

// Exit closes the scope. A non-nil outcome (the action failed) is returned
// as is and verification is skipped. Otherwise every pair must be found in
// content written since Enter, or an *ExpectationError is returned.
func (s *Scope) Exit(ctx context.Context, outcome error) error {
	s.mu.Lock()
	if s.state != Armed {
		s.mu.Unlock()
		return ErrScopeClosed
	}
	s.state = Verifying
	s.mu.Unlock()

	if outcome != nil {
		s.setState(Failed)
		return outcome
	}

	ctx, span := observability.StartSpan(ctx, "expect.verify",
		attribute.String("group_id", s.groupID),
		attribute.Int("pairs", len(s.pairs)))

	err := s.verify(ctx)
	if err != nil {
		s.setState(Failed)
		observability.EndSpan(span, err, "expectation failed")
		return err
	}

	s.setState(Satisfied)
	observability.EndSpan(span, nil, "expectation satisfied")
	return nil
}

// State returns the current state of the scope
func (s *Scope) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run enters a scope, runs action and exits the scope on every path out of
// action, including panics (which are re-raised after exit).
func (v *Verifier) Run(ctx context.Context, pairs []domain.RegexPair, groupID string, action func(context.Context) error) (err error) {
	scope, err := v.Enter(ctx, pairs, groupID)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = scope.Exit(ctx, fmt.Errorf("action panicked: %v", r))
			panic(r)
		}
	}()

	return scope.Exit(ctx, action(ctx))
}

func (s *Scope) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scope) verify(ctx context.Context) error {
	for i, p := range s.pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		files, err := s.filesFor(p.FileGlob)
		if err != nil {
			return err
		}

		re := s.compiled[i]
		notMatching := func(line string) bool { return !re.MatchString(line) }

		found := false
		for _, f := range files {
			// the live file is searched from its entry offset whatever its
			// mtime; rotated copies touched in the entry tick are included
			segments, err := rotation.ResolveInclusive(f, s.offsets[f], s.timestamp)
			if err != nil {
				return err
			}
			found, err = logreader.ScanChain(segments, f, logreader.Unbounded, notMatching)
			if err != nil {
				return err
			}
			if found {
				log.Debug().
					Str("group_id", s.groupID).
					Str("regex", p.Regex).
					Str("file", f).
					Msg("Expected line found")
				break
			}
		}

		if !found {
			return &ExpectationError{Regex: p.Regex, Glob: p.FileGlob, Files: files}
		}
	}
	return nil
}

// filesFor returns live files matching glob now or when the scope was entered
func (s *Scope) filesFor(glob string) ([]string, error) {
	current, err := s.v.liveFiles(glob)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(current))
	for _, f := range current {
		set[f] = struct{}{}
	}
	pattern := filepath.Join(s.v.stateDir, glob)
	for f := range s.offsets {
		if ok, _ := filepath.Match(pattern, f); ok {
			set[f] = struct{}{}
		}
	}

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// liveFiles expands glob inside the state directory, skipping rotated copies
// and hidden bookkeeping files
func (v *Verifier) liveFiles(glob string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(v.stateDir, glob))
	if err != nil {
		return nil, fmt.Errorf("invalid file glob %q: %w", glob, err)
	}

	var files []string
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasPrefix(name, ".") || rotation.IsRotated(name) {
			continue
		}
		if info, err := os.Stat(m); err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}

// clock reads the filesystem clock through the group rule file written on
// entry, so the scope start compares consistently with log file mtimes
func (v *Verifier) clock(groupID string) time.Time {
	if stat, err := os.Stat(v.rules.GroupPath(groupID)); err == nil {
		return stat.ModTime()
	}
	return time.Now()
}

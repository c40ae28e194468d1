// Package sweep implements the incremental error sweep over a cluster state
// directory.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SteelMorgan/cluster-log-guard/internal/baseline"
	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/logreader"
	"github.com/SteelMorgan/cluster-log-guard/internal/observability"
	"github.com/SteelMorgan/cluster-log-guard/internal/offset"
	"github.com/SteelMorgan/cluster-log-guard/internal/rotation"
	"github.com/SteelMorgan/cluster-log-guard/internal/rules"
)

// DefaultLogGlob selects stdout/stderr streams of cluster processes
const DefaultLogGlob = "*.std*"

// RuleSource provides the current ignore rules
type RuleSource interface {
	List(ctx context.Context) ([]domain.IgnoreRule, error)
}

// Scanner sweeps one state directory for unexpected error lines
type Scanner struct {
	stateDir  string
	logGlob   string
	bookmarks offset.BookmarkStore
	rules     RuleSource
	baseline  *baseline.Baseline
}

// NewScanner creates a scanner. An empty logGlob selects DefaultLogGlob and a
// nil baseline selects the built-in one.
func NewScanner(stateDir, logGlob string, bookmarks offset.BookmarkStore, ruleSource RuleSource, base *baseline.Baseline) *Scanner {
	if logGlob == "" {
		logGlob = DefaultLogGlob
	}
	if base == nil {
		base = baseline.Default()
	}
	return &Scanner{
		stateDir:  stateDir,
		logGlob:   logGlob,
		bookmarks: bookmarks,
		rules:     ruleSource,
		baseline:  base,
	}
}

// Candidates returns the live log files of the state directory. Hidden files
// (bookmark sidecars, rule files) and rotated copies are never candidates;
// rotated copies are reached through their live file.
func (s *Scanner) Candidates() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.stateDir, s.logGlob))
	if err != nil {
		return nil, fmt.Errorf("invalid log glob %q: %w", s.logGlob, err)
	}

	var result []string
	for _, path := range matches {
		name := filepath.Base(path)
		if strings.HasPrefix(name, ".") || rotation.IsRotated(name) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		result = append(result, path)
	}
	sort.Strings(result)
	return result, nil
}

// Sweep scans everything written since the previous sweep and returns the
// error lines not covered by the baseline or the ignore rules.
//
// Each file is claimed (bookmark moved to its current end) before it is read,
// so concurrent sweeps never report the same range twice. A crash between
// claim and read drops that range from detection.
//
// A failure on one file does not stop the sweep: the lines found in every
// other file are returned together with the joined per-file errors, since
// their ranges are already claimed and would not be reported again.
func (s *Scanner) Sweep(ctx context.Context) ([]domain.OffendingLine, error) {
	ctx, span := observability.StartSpan(ctx, "sweep", attribute.String("state_dir", s.stateDir))

	offending, err := s.sweep(ctx)
	span.SetAttributes(attribute.Int("offending", len(offending)))
	if err != nil {
		observability.EndSpan(span, err, "sweep failed")
		return offending, err
	}

	observability.EndSpan(span, nil, "sweep completed")
	return offending, nil
}

func (s *Scanner) sweep(ctx context.Context) ([]domain.OffendingLine, error) {
	ignoreRules, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := s.Candidates()
	if err != nil {
		return nil, err
	}

	var (
		offending []domain.OffendingLine
		errs      []error
	)
	for _, logPath := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		found, err := s.scanFile(ctx, logPath, ignoreRules)
		offending = append(offending, found...)
		if err != nil {
			log.Error().
				Err(err).
				Str("file", logPath).
				Msg("Failed to sweep log file")
			errs = append(errs, fmt.Errorf("%s: %w", logPath, err))
		}
	}

	log.Info().
		Str("state_dir", s.stateDir).
		Int("files", len(candidates)).
		Int("offending", len(offending)).
		Int("failed", len(errs)).
		Msg("Sweep completed")

	return offending, errors.Join(errs...)
}

func (s *Scanner) scanFile(ctx context.Context, logPath string, ignoreRules []domain.IgnoreRule) ([]domain.OffendingLine, error) {
	ignore := rules.EffectiveIgnore(ignoreRules, s.baseline.Ignore, filepath.Base(logPath))

	prev, claimed, _, err := s.bookmarks.Claim(ctx, logPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("file", logPath).Msg("Log file disappeared before it was swept")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	segments, err := rotation.Resolve(logPath, prev.Offset, prev.Timestamp)
	if err != nil {
		return nil, err
	}

	var offending []domain.OffendingLine
	_, err = logreader.ScanChain(segments, logPath, claimed, func(line string) bool {
		if s.baseline.IsError(line) && !ignore.MatchString(line) {
			offending = append(offending, domain.OffendingLine{File: logPath, Line: line})
		}
		return true
	})
	if err != nil {
		// the range is claimed: keep what was read before the failure
		return offending, err
	}

	log.Debug().
		Str("file", logPath).
		Int64("offset", prev.Offset).
		Int64("claimed", claimed).
		Int("segments", len(segments)).
		Int("offending", len(offending)).
		Msg("Log file swept")

	return offending, nil
}

// Package rules keeps the shared ignore-rule store of one cluster instance.
//
// Rules are grouped: every group lives in its own `.errors_rules_<group>` file
// inside the state directory, one `glob;;regex` line per rule. Groups are added
// and removed as a unit, so a scoped expectation can drop everything it
// registered with a single call. All file access happens under the instance
// advisory lock.
package rules

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/locking"
)

const (
	// FilePrefix is the name prefix of rule group files
	FilePrefix = ".errors_rules_"
	separator  = ";;"
)

// ErrInvalidGroupID is returned for group ids that cannot be used as a file name suffix
var ErrInvalidGroupID = errors.New("invalid rule group id")

// Store implements the ignore-rule store on top of the state directory
type Store struct {
	stateDir string
	lock     *locking.Lock
}

// NewStore creates a rule store for stateDir guarded by lock
func NewStore(stateDir string, lock *locking.Lock) *Store {
	return &Store{stateDir: stateDir, lock: lock}
}

// GroupPath returns the rule file path of a group
func (s *Store) GroupPath(groupID string) string {
	return filepath.Join(s.stateDir, FilePrefix+groupID)
}

// Add appends one rule to the group file. Duplicate rules are harmless.
func (s *Store) Add(ctx context.Context, glob, regex, groupID string) error {
	if err := ValidateGroupID(groupID); err != nil {
		return err
	}
	if glob == "" || regex == "" {
		return fmt.Errorf("glob and regex are required")
	}
	if strings.Contains(glob, separator) || strings.ContainsAny(glob+regex, "\n") {
		return fmt.Errorf("rule %q %q contains a reserved sequence", glob, regex)
	}

	err := s.lock.With(ctx, func() error {
		f, err := os.OpenFile(s.GroupPath(groupID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		if _, err := f.WriteString(glob + separator + regex + "\n"); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to add ignore rule: %w", err)
	}

	log.Debug().
		Str("group_id", groupID).
		Str("glob", glob).
		Str("regex", regex).
		Msg("Ignore rule added")

	return nil
}

// DeleteGroup removes all rules of a group. Deleting a missing group succeeds.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	if err := ValidateGroupID(groupID); err != nil {
		return err
	}

	err := s.lock.With(ctx, func() error {
		err := os.Remove(s.GroupPath(groupID))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete rule group: %w", err)
	}

	log.Debug().Str("group_id", groupID).Msg("Rule group deleted")
	return nil
}

// List returns the distinct rules of all groups, in group file order
func (s *Store) List(ctx context.Context) ([]domain.IgnoreRule, error) {
	var result []domain.IgnoreRule

	err := s.lock.With(ctx, func() error {
		files, err := filepath.Glob(filepath.Join(s.stateDir, FilePrefix+"*"))
		if err != nil {
			return err
		}
		sort.Strings(files)

		seen := make(map[domain.IgnoreRule]struct{})
		for _, path := range files {
			rules, err := readGroupFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return err
			}
			for _, r := range rules {
				if _, ok := seen[r]; ok {
					continue
				}
				seen[r] = struct{}{}
				result = append(result, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ignore rules: %w", err)
	}

	return result, nil
}

// Groups returns the ids of all groups currently present
func (s *Store) Groups(ctx context.Context) ([]string, error) {
	var groups []string
	err := s.lock.With(ctx, func() error {
		files, err := filepath.Glob(filepath.Join(s.stateDir, FilePrefix+"*"))
		if err != nil {
			return err
		}
		for _, f := range files {
			groups = append(groups, strings.TrimPrefix(filepath.Base(f), FilePrefix))
		}
		sort.Strings(groups)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rule groups: %w", err)
	}
	return groups, nil
}

// ValidateGroupID checks that groupID can be embedded in a file name
func ValidateGroupID(groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidGroupID)
	}
	if strings.ContainsAny(groupID, `/\`) || groupID == "." || groupID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidGroupID, groupID)
	}
	return nil
}

// readGroupFile parses a rule file. Lines without the separator or without a
// regex are partial writes and are skipped.
func readGroupFile(path string) ([]domain.IgnoreRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rules []domain.IgnoreRule
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		glob, regex, ok := strings.Cut(scanner.Text(), separator)
		if !ok || regex == "" {
			continue
		}
		rules = append(rules, domain.IgnoreRule{FileGlob: glob, Regex: regex})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rules, nil
}

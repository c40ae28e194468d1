package rules

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
)

// Matcher is the effective ignore filter of one log file.
// The zero value and a nil *Matcher match nothing.
type Matcher struct {
	re       *regexp.Regexp
	patterns []*regexp.Regexp
}

// MatchString reports whether line is ignored
func (m *Matcher) MatchString(line string) bool {
	if m == nil {
		return false
	}
	if m.re != nil {
		return m.re.MatchString(line)
	}
	for _, p := range m.patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns that make up the filter
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.String()
	}
	return out
}

// Empty reports whether the filter can never match
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// EffectiveIgnore combines the baseline patterns with every rule whose glob
// matches filename (a base name, not a path). It returns nil when the union
// is empty, so an empty alternation never ends up matching every line.
func EffectiveIgnore(ignoreRules []domain.IgnoreRule, baseline []*regexp.Regexp, filename string) *Matcher {
	seen := make(map[string]struct{})
	var patterns []*regexp.Regexp

	add := func(re *regexp.Regexp) {
		if _, ok := seen[re.String()]; ok {
			return
		}
		seen[re.String()] = struct{}{}
		patterns = append(patterns, re)
	}

	for _, re := range baseline {
		if re != nil {
			add(re)
		}
	}

	for _, rule := range ignoreRules {
		matched, err := filepath.Match(rule.FileGlob, filename)
		if err != nil {
			log.Warn().
				Err(err).
				Str("glob", rule.FileGlob).
				Msg("Skipping ignore rule with malformed glob")
			continue
		}
		if !matched {
			continue
		}
		if _, ok := seen[rule.Regex]; ok {
			continue
		}
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			log.Warn().
				Err(err).
				Str("regex", rule.Regex).
				Msg("Skipping ignore rule with malformed regex")
			continue
		}
		add(re)
	}

	if len(patterns) == 0 {
		return nil
	}

	m := &Matcher{patterns: patterns}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(?:" + p.String() + ")"
	}
	if re, err := regexp.Compile(strings.Join(parts, "|")); err == nil {
		m.re = re
	}
	return m
}

package normalizer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
)

// LineNormalizer replaces the dynamic parts of a log line with placeholders
// so that repeated occurrences of the same error collapse into one signature
type LineNormalizer struct {
	uuidPattern      *regexp.Regexp
	timestampPattern *regexp.Regexp
	hexPattern       *regexp.Regexp
	addrPattern      *regexp.Regexp
	numberPattern    *regexp.Regexp
	stringPattern    *regexp.Regexp
}

// NewLineNormalizer creates a normalizer with compiled patterns
func NewLineNormalizer() *LineNormalizer {
	return &LineNormalizer{
		uuidPattern:      regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`),
		timestampPattern: regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),
		hexPattern:       regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`),
		addrPattern:      regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b`),
		numberPattern:    regexp.MustCompile(`\b\d+\b`),
		stringPattern:    regexp.MustCompile(`"[^"]*"|'[^']*'`),
	}
}

// Normalize returns the signature of line.
// Order matters: specific patterns run before the generic number pattern.
func (n *LineNormalizer) Normalize(line string) string {
	if line == "" {
		return ""
	}

	normalized := n.uuidPattern.ReplaceAllString(line, "<UUID>")
	normalized = n.timestampPattern.ReplaceAllString(normalized, "<TIMESTAMP>")
	normalized = n.addrPattern.ReplaceAllString(normalized, "<ADDR>")
	normalized = n.hexPattern.ReplaceAllString(normalized, "<HEX>")
	normalized = n.numberPattern.ReplaceAllString(normalized, "<NUMBER>")
	normalized = n.stringPattern.ReplaceAllString(normalized, "<STRING>")

	return strings.TrimSpace(normalized)
}

// Summarize groups offending lines by signature, most frequent first
func (n *LineNormalizer) Summarize(lines []domain.OffendingLine) []domain.ErrorGroup {
	index := make(map[string]int)
	var groups []domain.ErrorGroup

	for _, l := range lines {
		sig := n.Normalize(l.Line)
		i, ok := index[sig]
		if !ok {
			i = len(groups)
			index[sig] = i
			groups = append(groups, domain.ErrorGroup{Signature: sig, Sample: l})
		}
		g := &groups[i]
		g.Occurrences++
		if !containsString(g.Files, l.File) {
			g.Files = append(g.Files, l.File)
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Occurrences > groups[j].Occurrences
	})
	return groups
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

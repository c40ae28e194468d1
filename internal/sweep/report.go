package sweep

import (
	"strings"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
)

// ArtifactErrors is the failure produced for unexpected error lines
type ArtifactErrors struct {
	Lines []domain.OffendingLine
}

func (e *ArtifactErrors) Error() string {
	var b strings.Builder
	b.WriteString("Errors found in cluster log files:")
	for _, l := range e.Lines {
		b.WriteString("\n")
		b.WriteString(l.File)
		b.WriteString(": ")
		b.WriteString(l.Line)
	}
	return b.String()
}

// Report turns a non-empty sweep result into an *ArtifactErrors
func Report(lines []domain.OffendingLine) error {
	if len(lines) == 0 {
		return nil
	}
	return &ArtifactErrors{Lines: lines}
}

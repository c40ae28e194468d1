package baseline

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DefaultErrorPattern is the generic error signature a line must match to be
// considered an error at all
const DefaultErrorPattern = `(?i)error|fail`

// defaultIgnored are known-benign messages of cluster processes
var defaultIgnored = []string{
	"Connection Attempt Exception",
	"EKGServerStartupError",
	"ExceededTimeLimit",
	"Failed to start all required subscriptions",
	"TraceDidntAdoptBlock",
	"failedScripts",
	"closed when reading data, waiting on next header",
	"MuxIOException writev: resource vanished",
	`MuxIOException Network\.Socket\.recvBuf: resource vanished`,
	"db-sync-node:.* AsyncCancelled",
	"db-sync-node:.* validateEpochRewardsBefore",
	// single postgres instance shared by several db-sync services
	"db-sync-node:.*could not serialize access",
}

// File is the on-disk yaml format of a baseline file
type File struct {
	ErrorPattern    string   `yaml:"error_pattern"`
	ReplaceDefaults bool     `yaml:"replace_defaults"`
	Ignore          []string `yaml:"ignore"`
}

// Baseline is the static part of the ignore filter plus the error signature
type Baseline struct {
	ErrorPattern *regexp.Regexp
	Ignore       []*regexp.Regexp
}

// Default returns the built-in baseline
func Default() *Baseline {
	b, err := build(File{})
	if err != nil {
		// built-in patterns are constants
		panic(err)
	}
	return b
}

// Load loads a baseline yaml file on top of the built-in list.
// An empty path returns the built-in baseline.
func Load(path string) (*Baseline, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse baseline: %w", err)
	}

	return build(f)
}

// IsError reports whether line carries the error signature
func (b *Baseline) IsError(line string) bool {
	return b.ErrorPattern.MatchString(line)
}

func build(f File) (*Baseline, error) {
	pattern := f.ErrorPattern
	if pattern == "" {
		pattern = DefaultErrorPattern
	}
	errorRe, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid error_pattern %q: %w", pattern, err)
	}

	var sources []string
	if !f.ReplaceDefaults {
		sources = append(sources, defaultIgnored...)
	}
	sources = append(sources, f.Ignore...)

	ignore := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", src, err)
		}
		ignore = append(ignore, re)
	}

	return &Baseline{ErrorPattern: errorRe, Ignore: ignore}, nil
}

package domain

// IgnoreRule excludes lines matching Regex in files whose name matches FileGlob
type IgnoreRule struct {
	FileGlob string
	Regex    string
}

// RegexPair declares that Regex is expected in files matching FileGlob
type RegexPair struct {
	FileGlob string
	Regex    string
}

// OffendingLine is an error line not covered by any ignore rule
type OffendingLine struct {
	File string // Path of the live log file the line belongs to
	Line string
}

// ErrorGroup collects offending lines that share a normalized signature
type ErrorGroup struct {
	Signature   string
	Occurrences int
	Files       []string
	Sample      OffendingLine
}

package domain

import "time"

// Bookmark records how far a log artifact has been scanned.
// Offset is relative to the file that was live at Timestamp.
type Bookmark struct {
	Offset    int64
	Timestamp time.Time
}

// RotatedSegment is one physical incarnation of a log artifact together with
// the byte offset at which reading resumes
type RotatedSegment struct {
	Path         string
	ResumeOffset int64
	ModifiedAt   time.Time
}

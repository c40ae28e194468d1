package logreader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/rotation"
)

// Unbounded disables the end limit of ScanSegment
const Unbounded int64 = -1

const maxLineSize = 1024 * 1024

// LineFunc is called for every line of a segment, without the line terminator.
// Returning false stops the scan.
type LineFunc func(line string) bool

// ScanSegment reads seg line by line from its resume offset up to end
// (exclusive, Unbounded for the whole file). Offsets of compressed segments
// refer to decompressed content. It reports whether fn stopped the scan.
func ScanSegment(seg domain.RotatedSegment, end int64, fn LineFunc) (bool, error) {
	file, err := os.Open(seg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		// rotated away and removed since the chain was resolved
		log.Warn().Str("file", seg.Path).Msg("Log segment disappeared before it was scanned")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open segment: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if rotation.IsCompressed(seg.Path) {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return false, fmt.Errorf("failed to create gzip reader for %s: %w", seg.Path, err)
		}
		defer gzReader.Close()

		if _, err := io.CopyN(io.Discard, gzReader, seg.ResumeOffset); err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("failed to skip to offset %d in %s: %w", seg.ResumeOffset, seg.Path, err)
		}
		reader = gzReader
	} else if seg.ResumeOffset > 0 {
		if _, err := file.Seek(seg.ResumeOffset, io.SeekStart); err != nil {
			return false, fmt.Errorf("failed to seek to offset %d in %s: %w", seg.ResumeOffset, seg.Path, err)
		}
	}

	if end != Unbounded {
		if end <= seg.ResumeOffset {
			return false, nil
		}
		reader = io.LimitReader(reader, end-seg.ResumeOffset)
	}

	log.Debug().
		Str("file", seg.Path).
		Int64("offset", seg.ResumeOffset).
		Int64("end", end).
		Msg("Scanning log segment")

	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for scanner.Scan() {
		if !fn(strings.TrimSuffix(scanner.Text(), "\r")) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("scanner error in %s: %w", seg.Path, err)
	}

	return false, nil
}

// ScanChain reads segments in order until fn stops the scan.
// The segment whose path equals livePath is bounded by liveEnd.
func ScanChain(segments []domain.RotatedSegment, livePath string, liveEnd int64, fn LineFunc) (bool, error) {
	for _, seg := range segments {
		end := Unbounded
		if seg.Path == livePath {
			end = liveEnd
		}
		stopped, err := ScanSegment(seg, end, fn)
		if err != nil {
			return false, err
		}
		if stopped {
			return true, nil
		}
	}
	return false, nil
}

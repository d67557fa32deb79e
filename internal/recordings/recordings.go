// Package recordings lists the MP4 files the recorder has written to its
// configured directory, parsing the "NDI_{timestamp}_{W}x{H}_{codec}.mp4"
// filename convention of internal/recorder/writer.go back into structured
// fields, per spec.md §6's filesystem layout.
//
// Modeled after the teacher's read-only Stats()-style snapshot methods
// (internal/rtsp.Stream.Stats(), internal/framebus.Bus.Stats()): a thin,
// allocation-light lister with no background state of its own.
package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// RecordingFile describes one recorded MP4 on disk.
type RecordingFile struct {
	Name        string
	Path        string
	SizeBytes   int64
	Width       int
	Height      int
	Codec       string
	RecordedAt  time.Time
	DurationMs  int64
	ModTime     time.Time
}

var filenamePattern = regexp.MustCompile(`^NDI_(\d{8}_\d{6})_(\d+)x(\d+)_([A-Za-z0-9]+)\.mp4$`)

// List returns the recordings found in dir, sorted newest-first by
// RecordedAt. Files that don't match the writer's naming convention are
// skipped rather than erroring the whole listing.
func List(dir string) ([]RecordingFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("recordings: read dir: %w", err)
	}

	files := make([]RecordingFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rf, ok := parseEntry(dir, entry)
		if !ok {
			continue
		}
		files = append(files, rf)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RecordedAt.After(files[j].RecordedAt)
	})
	return files, nil
}

// Stat describes one recording by filename within dir, returning the
// same structured fields List would for a matching entry.
func Stat(dir, name string) (RecordingFile, error) {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return RecordingFile{}, fmt.Errorf("recordings: stat %q: %w", name, err)
	}
	rf, ok := parse(dir, name, info)
	if !ok {
		return RecordingFile{}, fmt.Errorf("recordings: %q does not match the recorder's naming convention", name)
	}
	return rf, nil
}

func parseEntry(dir string, entry os.DirEntry) (RecordingFile, bool) {
	info, err := entry.Info()
	if err != nil {
		return RecordingFile{}, false
	}
	return parse(dir, entry.Name(), info)
}

func parse(dir, name string, info os.FileInfo) (RecordingFile, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return RecordingFile{}, false
	}

	recordedAt, err := time.ParseInLocation("20060102_150405", m[1], time.Local)
	if err != nil {
		return RecordingFile{}, false
	}
	width, err := strconv.Atoi(m[2])
	if err != nil {
		return RecordingFile{}, false
	}
	height, err := strconv.Atoi(m[3])
	if err != nil {
		return RecordingFile{}, false
	}

	modTime := info.ModTime()
	durationMs := modTime.Sub(recordedAt).Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}

	return RecordingFile{
		Name:       name,
		Path:       filepath.Join(dir, name),
		SizeBytes:  info.Size(),
		Width:      width,
		Height:     height,
		Codec:      m[4],
		RecordedAt: recordedAt,
		DurationMs: durationMs,
		ModTime:    modTime,
	}, true
}

// Delete removes a recording by filename within dir, refusing to touch
// anything outside dir or that doesn't look like a recorder-written file.
func Delete(dir, name string) error {
	if filepath.Base(name) != name || !filenamePattern.MatchString(name) {
		return fmt.Errorf("recordings: refusing to delete %q: not a recorder-owned filename", name)
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("recordings: delete %q: %w", name, err)
	}
	return nil
}

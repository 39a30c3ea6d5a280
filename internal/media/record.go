package media

import (
	"fmt"
	"strings"
	"time"
)

type DateSource int

const (
	FilenameSource DateSource = iota
	ExifSource
	OtherSource
)

func (s DateSource) String() string {
	switch s {
	case FilenameSource:
		return "filename"
	case ExifSource:
		return "exif"
	case OtherSource:
		return "other"
	}

	return fmt.Sprintf("UNKNOWN[%d]", s)
}

func (s DateSource) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ExtractedDate is a capture date recovered from somewhere other than the
// file's embedded metadata. Time-of-day is only meaningful when HasTime is set.
type ExtractedDate struct {
	Date    time.Time  `json:"date"`
	HasTime bool       `json:"has_time"`
	Source  DateSource `json:"source"`
	// Pattern names the naming convention that matched, e.g. "WhatsApp".
	Pattern string `json:"pattern"`
}

func (d ExtractedDate) DateString() string { return d.Date.Format("2006-01-02") }

// TimeString returns the clock time, or an empty string if none was extracted.
func (d ExtractedDate) TimeString() string {
	if !d.HasTime {
		return ""
	}

	return d.Date.Format("15:04:05")
}

// Timestamp is the extracted date at its extracted time of day, or at
// midday when no time was extracted.
func (d ExtractedDate) Timestamp() time.Time {
	if d.HasTime {
		return d.Date
	}

	year, month, day := d.Date.Date()
	return time.Date(year, month, day, 12, 0, 0, 0, d.Date.Location())
}

// FileRecord describes a single media file found by a scan.
type FileRecord struct {
	Path string `json:"path"`
	// HasDate is true when the embedded metadata carries a capture date. It
	// is independent of ExtractedDate.
	HasDate       bool           `json:"has_date"`
	ExtractedDate *ExtractedDate `json:"extracted_date,omitempty"`
	// CameraModel is empty when the metadata does not identify a camera.
	CameraModel string `json:"camera_model,omitempty"`
}

func (r FileRecord) String() string {
	return fmt.Sprintf("FileRecord{Path=%s HasDate=%v Camera=%q}", r.Path, r.HasDate, r.CameraModel)
}

// Metadata is the subset of embedded metadata the scanner consumes.
type Metadata struct {
	DateTimeOriginal *time.Time
	Make             string
	Model            string
}

// CameraModel joins make and model, or returns whichever is present.
func (m Metadata) CameraModel() string {
	mk, model := strings.TrimSpace(m.Make), strings.TrimSpace(m.Model)
	switch {
	case mk != "" && model != "":
		return mk + " " + model
	case model != "":
		return model
	default:
		return mk
	}
}

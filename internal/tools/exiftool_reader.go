package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/hbomb79/Tasaveer/internal/process"
)

// ExiftoolReader reads metadata by running exiftool in JSON mode. It
// supports every container exiftool does, at the cost of a process per file.
type ExiftoolReader struct {
	Binary string
}

type exiftoolRecord struct {
	SourceFile       string `json:"SourceFile"`
	DateTimeOriginal any    `json:"DateTimeOriginal"`
	CreateDate       any    `json:"CreateDate"`
	Make             any    `json:"Make"`
	Model            any    `json:"Model"`
}

func (reader *ExiftoolReader) Read(ctx context.Context, path string) (media.Metadata, error) {
	result, err := process.Run(ctx, reader.Binary,
		"-json", "-DateTimeOriginal", "-CreateDate", "-Make", "-Model", path)
	if err != nil {
		return media.Metadata{}, fmt.Errorf("exiftool could not read %s: %w", path, err)
	}

	return parseExiftoolJSON(strings.Join(result.Lines, "\n"))
}

func parseExiftoolJSON(output string) (media.Metadata, error) {
	var records []exiftoolRecord
	if err := json.Unmarshal([]byte(output), &records); err != nil {
		return media.Metadata{}, fmt.Errorf("unexpected exiftool output: %w", err)
	}
	if len(records) == 0 {
		return media.Metadata{}, fmt.Errorf("exiftool returned no records")
	}

	rec := records[0]
	meta := media.Metadata{
		Make:  stringValue(rec.Make),
		Model: stringValue(rec.Model),
	}

	if raw := stringValue(rec.DateTimeOriginal); raw != "" {
		// Sub-second and timezone suffixes are ignored.
		if len(raw) >= len(media.ExifTimeLayout) {
			raw = raw[:len(media.ExifTimeLayout)]
		}
		if t, err := time.Parse(media.ExifTimeLayout, raw); err == nil {
			meta.DateTimeOriginal = &t
		}
	}

	return meta, nil
}

// exiftool emits numeric-looking values (e.g. a Model of "5") as numbers.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/hbomb79/Tasaveer/internal/process"
)

const exifDateLayout = "2006:01:02 15:04:05"

// DateWriter embeds a capture date in a media file.
type DateWriter interface {
	WriteDate(ctx context.Context, path string, taken time.Time) error
}

// ExiftoolDateWriter sets DateTimeOriginal and CreateDate using exiftool.
type ExiftoolDateWriter struct {
	Binary string
}

func (writer *ExiftoolDateWriter) WriteDate(ctx context.Context, path string, taken time.Time) error {
	stamp := taken.Format(exifDateLayout)
	_, err := process.Run(ctx, writer.Binary,
		"-overwrite_original",
		"-DateTimeOriginal="+stamp,
		"-CreateDate="+stamp,
		path,
	)
	if err != nil {
		return fmt.Errorf("exiftool failed to write capture date to %s: %w", path, err)
	}

	return nil
}

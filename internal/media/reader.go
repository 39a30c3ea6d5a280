package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var ErrUnsupportedFormat = errors.New("metadata reader does not support this file format")

// ExifTimeLayout is the timestamp layout used by EXIF date fields.
const ExifTimeLayout = "2006:01:02 15:04:05"

// MetadataReader extracts embedded metadata from a media file.
type MetadataReader interface {
	Read(ctx context.Context, path string) (Metadata, error)
}

// NativeReader decodes EXIF directly from JPEG and TIFF containers without
// spawning any external tool.
type NativeReader struct{}

var nativeExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".dng":  true,
}

func (NativeReader) Read(_ context.Context, path string) (Metadata, error) {
	if !nativeExtensions[strings.ToLower(filepath.Ext(path))] {
		return Metadata{}, ErrUnsupportedFormat
	}

	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to decode EXIF from %s: %w", path, err)
	}

	meta := Metadata{
		Make:  exifString(x, exif.Make),
		Model: exifString(x, exif.Model),
	}
	if raw := exifString(x, exif.DateTimeOriginal); raw != "" {
		if t, err := time.Parse(ExifTimeLayout, raw); err == nil {
			meta.DateTimeOriginal = &t
		}
	}

	return meta, nil
}

func exifString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}

	val, err := tag.StringVal()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(strings.TrimRight(val, "\x00"))
}

// ChainReader tries each reader in order and returns the first success.
// Readers reporting ErrUnsupportedFormat are skipped silently.
type ChainReader []MetadataReader

func (chain ChainReader) Read(ctx context.Context, path string) (Metadata, error) {
	var errs []error
	for _, reader := range chain {
		meta, err := reader.Read(ctx, path)
		if err == nil {
			return meta, nil
		}
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return Metadata{}, ErrUnsupportedFormat
	}

	return Metadata{}, errors.Join(errs...)
}

package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("Scanner")

// Extensions lists the file types considered media by a scan.
var Extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".heif": true,
	".webp": true,
	".tif":  true,
	".tiff": true,
	".dng":  true,
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".m4v":  true,
	".mp3":  true,
}

// skipFolders are system or camera housekeeping directories which never
// contain user media. Hidden directories are skipped regardless.
var skipFolders = map[string]bool{
	"PRIVATE":      true,
	"AVF_INFO":     true,
	"THMBNL":       true,
	"$RECYCLE.BIN": true,
}

// Scanner walks a directory tree and produces a FileRecord for every media
// file found.
type Scanner struct {
	reader MetadataReader
}

func NewScanner(reader MetadataReader) *Scanner {
	return &Scanner{reader: reader}
}

// IsMedia reports whether the path has a recognised media extension.
func IsMedia(path string) bool {
	return Extensions[strings.ToLower(filepath.Ext(path))]
}

// Scan walks root recursively in lexical order. Files whose metadata cannot
// be read are still returned, without a camera model or capture date.
func (scanner *Scanner) Scan(ctx context.Context, root string) ([]FileRecord, error) {
	records := make([]FileRecord, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}

			log.Emit(logger.WARNING, "Skipping unreadable path %s: %v\n", path, err)
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skipFolders[name]) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() || !IsMedia(path) {
			return nil
		}

		records = append(records, scanner.describe(ctx, path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan of %s failed: %w", root, err)
	}

	log.Emit(logger.DEBUG, "Scan of %s found %d media files\n", root, len(records))
	return records, nil
}

func (scanner *Scanner) describe(ctx context.Context, path string) FileRecord {
	record := FileRecord{
		Path:          path,
		ExtractedDate: ExtractDateFromFilename(filepath.Base(path)),
	}

	if scanner.reader == nil {
		return record
	}

	meta, err := scanner.reader.Read(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrUnsupportedFormat) {
			log.Emit(logger.DEBUG, "No metadata for %s: %v\n", path, err)
		}
		return record
	}

	record.HasDate = meta.DateTimeOriginal != nil
	record.CameraModel = meta.CameraModel()
	return record
}

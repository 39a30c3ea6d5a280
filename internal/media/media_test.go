package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDateFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		date     string
		time     string
		pattern  string
	}{
		{"IMG-20240115-WA0042.jpg", "2024-01-15", "", "WhatsApp"},
		{"WhatsApp Image 2024-01-15 at 10.30.45.jpeg", "2024-01-15", "10:30:45", "WhatsApp"},
		{"WhatsApp Video 2024-01-15.mp4", "2024-01-15", "", "WhatsApp"},
		{"Screenshot 2024-01-15 at 14.30.00.png", "2024-01-15", "14:30:00", "Screenshot"},
		{"20240115_143000.jpg", "2024-01-15", "14:30:00", "Camera"},
		{"IMG_20240115_143000.jpg", "2024-01-15", "14:30:00", "Camera"},
		{"photo_2024-03-20_something.jpg", "2024-03-20", "", "Filename"},
		{"random_image.jpg", "", "", ""},
		{"IMG_0001.jpg", "", "", ""},
		{"20241599_143000.jpg", "", "", ""},
		{"2024-02-30.jpg", "", "", ""},
		{"1850-01-01.jpg", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := media.ExtractDateFromFilename(tt.filename)
			if tt.date == "" {
				assert.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			assert.Equal(t, tt.date, got.DateString())
			assert.Equal(t, tt.time, got.TimeString())
			assert.Equal(t, tt.pattern, got.Pattern)
			assert.Equal(t, media.FilenameSource, got.Source)

			// A date without a time is written at midday.
			clock := tt.time
			if clock == "" {
				clock = "12:00:00"
			}
			assert.Equal(t, tt.date+" "+clock, got.Timestamp().Format("2006-01-02 15:04:05"))
		})
	}
}

func TestMetadata_CameraModel(t *testing.T) {
	tests := []struct {
		name  string
		meta  media.Metadata
		model string
	}{
		{"both", media.Metadata{Make: "Canon ", Model: " EOS R5"}, "Canon EOS R5"},
		{"model only", media.Metadata{Model: "Pixel 7"}, "Pixel 7"},
		{"make only", media.Metadata{Make: "Apple"}, "Apple"},
		{"neither", media.Metadata{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.model, tt.meta.CameraModel())
		})
	}
}

type fakeReader struct {
	metadata map[string]media.Metadata
}

func (f *fakeReader) Read(_ context.Context, path string) (media.Metadata, error) {
	if meta, ok := f.metadata[filepath.Base(path)]; ok {
		return meta, nil
	}

	return media.Metadata{}, media.ErrUnsupportedFormat
}

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	}
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"IMG_0001.jpg",
		"2023/IMG_0002.JPG",
		"2023/notes.txt",
		"clip.mp4",
		".hidden/secret.jpg",
		".DS_Store",
		"PRIVATE/M4ROOT/clip.mp4",
	)

	taken := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	scanner := media.NewScanner(&fakeReader{metadata: map[string]media.Metadata{
		"IMG_0001.jpg": {Make: "Canon", Model: "EOS", DateTimeOriginal: &taken},
		"IMG_0002.JPG": {Model: "Pixel 7"},
	}})

	records, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, records, 3)
	byName := make(map[string]media.FileRecord)
	for _, r := range records {
		byName[filepath.Base(r.Path)] = r
	}

	assert.Equal(t, "Canon EOS", byName["IMG_0001.jpg"].CameraModel)
	assert.True(t, byName["IMG_0001.jpg"].HasDate)
	assert.Equal(t, "Pixel 7", byName["IMG_0002.JPG"].CameraModel)
	assert.False(t, byName["IMG_0002.JPG"].HasDate)
	assert.Empty(t, byName["clip.mp4"].CameraModel)
	assert.Nil(t, byName["clip.mp4"].ExtractedDate)
}

func TestScanner_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "b.jpg", "a/z.jpg", "a.jpg", "c/d/e.png")

	scanner := media.NewScanner(nil)
	first, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestScanner_MissingRoot(t *testing.T) {
	_, err := media.NewScanner(nil).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestScanner_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := media.NewScanner(nil).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

type erroringReader struct{ err error }

func (r erroringReader) Read(context.Context, string) (media.Metadata, error) {
	return media.Metadata{}, r.err
}

func TestChainReader(t *testing.T) {
	want := media.Metadata{Model: "X100"}
	ok := &fakeReader{metadata: map[string]media.Metadata{"a.jpg": want}}

	t.Run("falls through unsupported", func(t *testing.T) {
		chain := media.ChainReader{erroringReader{media.ErrUnsupportedFormat}, ok}
		got, err := chain.Read(context.Background(), "/x/a.jpg")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("falls through failures", func(t *testing.T) {
		chain := media.ChainReader{erroringReader{errors.New("corrupt")}, ok}
		got, err := chain.Read(context.Background(), "/x/a.jpg")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("all unsupported", func(t *testing.T) {
		chain := media.ChainReader{erroringReader{media.ErrUnsupportedFormat}}
		_, err := chain.Read(context.Background(), "/x/a.jpg")
		assert.ErrorIs(t, err, media.ErrUnsupportedFormat)
	})

	t.Run("reports real failures", func(t *testing.T) {
		boom := errors.New("boom")
		chain := media.ChainReader{erroringReader{boom}, erroringReader{media.ErrUnsupportedFormat}}
		_, err := chain.Read(context.Background(), "/x/a.jpg")
		assert.ErrorIs(t, err, boom)
	})
}

func TestNativeReader_RejectsNonJpeg(t *testing.T) {
	_, err := media.NativeReader{}.Read(context.Background(), "/x/clip.mp4")
	assert.ErrorIs(t, err, media.ErrUnsupportedFormat)
}

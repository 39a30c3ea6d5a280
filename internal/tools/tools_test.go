package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bogem/id3v2"
	"github.com/hbomb79/Tasaveer/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTemplate_Expand(t *testing.T) {
	tmpl := CommandTemplate{
		Tool:     "phockup",
		Args:     []string{"{source}", "{destination}", "--date={date_format}", "-Directory<${DateTimeOriginal}"},
		MoveArgs: []string{"--move"},
	}
	vars := Transfer{Source: "/a/b", Destination: "/x", DateFormat: "%Y/%m"}.vars()

	assert.Equal(t,
		[]string{"/a/b", "/x", "--date=%Y/%m", "-Directory<${DateTimeOriginal}"},
		tmpl.Expand(vars, false))
	assert.Equal(t,
		[]string{"/a/b", "/x", "--date=%Y/%m", "-Directory<${DateTimeOriginal}", "--move"},
		tmpl.Expand(vars, true))
}

func TestTransfer_SourceName(t *testing.T) {
	vars := Transfer{Source: filepath.Join("a", "Camera Roll") + string(filepath.Separator)}.vars()
	assert.Equal(t, "Camera Roll", vars[SourceNameVar])
}

func TestCommandTransferer_CopiesAndNests(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on cp")
	}

	source := filepath.Join(t.TempDir(), "B")
	require.NoError(t, os.MkdirAll(filepath.Join(source, "2023"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "2023", "y.jpg"), []byte("y"), 0o644))
	staging := filepath.Join(t.TempDir(), "stage")

	transferer := NewCommandTransferer("cp", DefaultCopyTemplate())
	h, err := transferer.Transfer(context.Background(), Transfer{Source: source, Destination: staging})
	require.NoError(t, err)
	for range h.Lines() {
	}

	assert.True(t, h.Wait().Success())
	assert.FileExists(t, filepath.Join(staging, "B", "2023", "y.jpg"))
}

func TestParseExiftoolJSON(t *testing.T) {
	meta, err := parseExiftoolJSON(`[{
		"SourceFile": "/x/a.jpg",
		"DateTimeOriginal": "2023:06:01 12:30:00+02:00",
		"Make": "Canon",
		"Model": 5
	}]`)
	require.NoError(t, err)

	assert.Equal(t, "Canon 5", meta.CameraModel())
	require.NotNil(t, meta.DateTimeOriginal)
	assert.Equal(t, 2023, meta.DateTimeOriginal.Year())
	assert.Equal(t, 30, meta.DateTimeOriginal.Minute())

	meta, err = parseExiftoolJSON(`[{"SourceFile": "/x/clip.mp4"}]`)
	require.NoError(t, err)
	assert.Nil(t, meta.DateTimeOriginal)
	assert.Empty(t, meta.CameraModel())

	_, err = parseExiftoolJSON("Error: File not found")
	assert.Error(t, err)
}

func writeMP3(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	frame := append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 412)...)
	require.NoError(t, os.WriteFile(path, frame, 0o644))

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	tag.SetTitle("Voice memo")
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{Encoding: id3v2.EncodingUTF8, Description: "Other", Value: "keep me"})
	require.NoError(t, tag.Save())
	require.NoError(t, tag.Close())

	return path
}

// readID3Keywords returns the keywords previously written by ID3KeywordWriter.
func readID3Keywords(path string) ([]string, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, err
	}
	defer tag.Close()

	for _, f := range tag.GetFrames(tag.CommonID("User defined text information frame")) {
		if udtf, ok := f.(id3v2.UserDefinedTextFrame); ok && udtf.Description == KeywordFrameDescription {
			return strings.Split(udtf.Value, "; "), nil
		}
	}

	return nil, nil
}

func TestID3KeywordWriter_Idempotent(t *testing.T) {
	path := writeMP3(t)
	writer := ID3KeywordWriter{}

	require.NoError(t, writer.WriteKeywords(context.Background(), path, []string{"Family", "Trip"}))
	require.NoError(t, writer.WriteKeywords(context.Background(), path, []string{"Family", "Trip"}))

	keywords, err := readID3Keywords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Family", "Trip"}, keywords)

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer tag.Close()
	assert.Equal(t, "Voice memo", tag.Title())
	assert.Len(t, tag.GetFrames(tag.CommonID("User defined text information frame")), 2)
}

func TestKeywordWriters_EmptyIsNoop(t *testing.T) {
	assert.NoError(t, (&ExiftoolKeywordWriter{Binary: "/nonexistent"}).WriteKeywords(context.Background(), "/x.jpg", nil))
	assert.NoError(t, ID3KeywordWriter{}.WriteKeywords(context.Background(), "/x.mp3", nil))
}

type recordingWriter struct{ paths []string }

func (r *recordingWriter) WriteKeywords(_ context.Context, path string, _ []string) error {
	r.paths = append(r.paths, path)
	return nil
}

func TestExiftoolDateWriter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake exiftool is a shell script")
	}

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	binary := filepath.Join(dir, "exiftool")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > \"" + argsFile + "\"\n[ -z \"$EXIFTOOL_FAIL\" ]\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))

	writer := &ExiftoolDateWriter{Binary: binary}
	taken := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, writer.WriteDate(context.Background(), "/staging/IMG-20240115-WA0042.jpg", taken))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-overwrite_original",
		"-DateTimeOriginal=2024:01:15 12:00:00",
		"-CreateDate=2024:01:15 12:00:00",
		"/staging/IMG-20240115-WA0042.jpg",
	}, strings.Split(strings.TrimSpace(string(args)), "\n"))

	t.Setenv("EXIFTOOL_FAIL", "1")
	err = writer.WriteDate(context.Background(), "/staging/a.jpg", taken)
	var exitErr *process.ExitError
	assert.ErrorAs(t, err, &exitErr)
}

func TestKeywordRouter(t *testing.T) {
	def, mp3 := &recordingWriter{}, &recordingWriter{}
	router := &KeywordRouter{Default: def, ByExtension: map[string]KeywordWriter{".mp3": mp3}}

	require.NoError(t, router.WriteKeywords(context.Background(), "/a/b.MP3", []string{"x"}))
	require.NoError(t, router.WriteKeywords(context.Background(), "/a/c.jpg", []string{"x"}))

	assert.Equal(t, []string{"/a/b.MP3"}, mp3.paths)
	assert.Equal(t, []string{"/a/c.jpg"}, def.paths)

	err := (&KeywordRouter{}).WriteKeywords(context.Background(), "/a/c.jpg", []string{"x"})
	assert.ErrorIs(t, err, process.ErrToolNotFound)
}

func TestCleaners(t *testing.T) {
	t.Run("native", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "stage")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))

		require.NoError(t, NativeCleaner{}.RemoveTree(context.Background(), dir))
		assert.NoDirExists(t, dir)
	})

	t.Run("command exit code", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("relies on sh")
		}

		cleaner := NewCommandCleaner("sh", CommandTemplate{Args: []string{"-c", "exit 4", "{path}"}})
		err := cleaner.RemoveTree(context.Background(), "/tmp/whatever")

		var exitErr *process.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 4, *exitErr.Status.Code)
	})
}

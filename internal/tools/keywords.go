package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/hbomb79/Tasaveer/internal/process"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

// KeywordFrameDescription is the description of the ID3 user text frame
// keywords are stored in.
const KeywordFrameDescription = "Keywords"

// KeywordWriter embeds keywords in a media file, replacing any keywords it
// previously wrote. Writing the same keywords twice leaves the file as the
// first write did.
type KeywordWriter interface {
	WriteKeywords(ctx context.Context, path string, keywords []string) error
}

// ExiftoolKeywordWriter writes XMP/IPTC/EXIF keywords using exiftool.
type ExiftoolKeywordWriter struct {
	Binary string
}

func (writer *ExiftoolKeywordWriter) WriteKeywords(ctx context.Context, path string, keywords []string) error {
	if len(keywords) == 0 {
		return nil
	}

	joined := strings.Join(keywords, ", ")
	_, err := process.Run(ctx, writer.Binary,
		"-overwrite_original",
		"-XPKeywords="+strings.Join(keywords, "; "),
		"-Keywords="+joined,
		"-IPTC:Keywords="+joined,
		path,
	)
	if err != nil {
		return fmt.Errorf("exiftool failed to write keywords to %s: %w", path, err)
	}

	return nil
}

// ID3KeywordWriter stores keywords in a TXXX frame of an MP3's ID3v2 tag.
type ID3KeywordWriter struct{}

func (ID3KeywordWriter) WriteKeywords(ctx context.Context, path string, keywords []string) error {
	if len(keywords) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open ID3 tag of %s: %w", path, err)
	}
	defer tag.Close()

	frameID := tag.CommonID("User defined text information frame")
	kept := make([]id3v2.UserDefinedTextFrame, 0)
	for _, f := range tag.GetFrames(frameID) {
		if udtf, ok := f.(id3v2.UserDefinedTextFrame); ok && udtf.Description != KeywordFrameDescription {
			kept = append(kept, udtf)
		}
	}

	tag.DeleteFrames(frameID)
	for _, udtf := range kept {
		tag.AddUserDefinedTextFrame(udtf)
	}
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: KeywordFrameDescription,
		Value:       strings.Join(keywords, "; "),
	})

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save ID3 tag of %s: %w", path, err)
	}

	return nil
}

// KeywordRouter picks a writer by file extension, falling back to Default.
type KeywordRouter struct {
	Default     KeywordWriter
	ByExtension map[string]KeywordWriter
}

func (router *KeywordRouter) WriteKeywords(ctx context.Context, path string, keywords []string) error {
	if writer, ok := router.ByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return writer.WriteKeywords(ctx, path, keywords)
	}

	if router.Default == nil {
		log.Emit(logger.WARNING, "No keyword writer available for %s\n", path)
		return fmt.Errorf("no keyword writer for %s: %w", path, process.ErrToolNotFound)
	}

	return router.Default.WriteKeywords(ctx, path, keywords)
}

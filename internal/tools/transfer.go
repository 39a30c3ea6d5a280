package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hbomb79/Tasaveer/internal/process"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("Tools")

// Transfer is a request to copy (or move) a tree of media from Source in to
// Destination. DateFormat is passed to tools which organise by date.
type Transfer struct {
	Source      string
	Destination string
	DateFormat  string
	Move        bool
}

func (t Transfer) vars() map[string]string {
	return map[string]string{
		SourceVar:      t.Source,
		SourceNameVar:  filepath.Base(filepath.Clean(t.Source)),
		DestinationVar: t.Destination,
		DateFormatVar:  t.DateFormat,
	}
}

// CommandTransferer performs a transfer by spawning an external tool.
type CommandTransferer struct {
	binary   string
	template CommandTemplate
}

// NewCommandTransferer binds a template to an already-resolved binary path.
func NewCommandTransferer(binary string, template CommandTemplate) *CommandTransferer {
	return &CommandTransferer{binary: binary, template: template}
}

// Transfer ensures the destination exists and then spawns the tool. The
// destination must exist beforehand so that copy tools nest the source
// folder inside it rather than copying on to it.
func (transferer *CommandTransferer) Transfer(ctx context.Context, req Transfer) (*process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(req.Destination, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination %s: %w", req.Destination, err)
	}

	args := transferer.template.Expand(req.vars(), req.Move)
	log.Emit(logger.DEBUG, "Transfer %s -> %s using %s %v\n", req.Source, req.Destination, transferer.binary, args)

	return process.Spawn(transferer.binary, args...)
}

func (transferer *CommandTransferer) String() string {
	return fmt.Sprintf("CommandTransferer{%s}", filepath.Base(transferer.binary))
}

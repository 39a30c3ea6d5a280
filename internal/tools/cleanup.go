package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/hbomb79/Tasaveer/internal/process"
)

// Cleaner removes a directory tree once the pipeline no longer needs it.
type Cleaner interface {
	RemoveTree(ctx context.Context, path string) error
}

// NativeCleaner removes the tree in-process.
type NativeCleaner struct{}

func (NativeCleaner) RemoveTree(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// CommandCleaner removes the tree by running an external command, for
// example when the staging area lives on a mount which needs special care.
// A non-zero exit is reported as a *process.ExitError.
type CommandCleaner struct {
	binary   string
	template CommandTemplate
}

func NewCommandCleaner(binary string, template CommandTemplate) *CommandCleaner {
	return &CommandCleaner{binary: binary, template: template}
}

func (cleaner *CommandCleaner) RemoveTree(ctx context.Context, path string) error {
	args := cleaner.template.Expand(map[string]string{PathVar: path}, false)
	if _, err := process.Run(ctx, cleaner.binary, args...); err != nil {
		return fmt.Errorf("cleanup of %s failed: %w", path, err)
	}

	return nil
}

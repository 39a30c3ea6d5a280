package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

// Resolver locates external tool binaries. A tool is looked up, in order,
// at its configured path, as a bundled copy inside BundleDir, and finally
// on the system PATH.
type Resolver struct {
	Overrides map[string]string
	BundleDir string

	lookPath func(string) (string, error)
}

func NewResolver(overrides map[string]string, bundleDir string) *Resolver {
	return &Resolver{Overrides: overrides, BundleDir: bundleDir, lookPath: exec.LookPath}
}

// Resolve returns the path of the binary to execute for the named tool. A
// failure is returned as a *SpawnError wrapping ErrToolNotFound.
func (resolver *Resolver) Resolve(tool string) (string, error) {
	if configured, ok := resolver.Overrides[tool]; ok && configured != "" {
		expanded, err := homedir.Expand(configured)
		if err != nil {
			return "", &SpawnError{Command: tool, Err: fmt.Errorf("invalid configured path %q: %w", configured, err)}
		}

		if isExecutableFile(expanded) {
			return expanded, nil
		}

		log.Emit(logger.WARNING, "Configured path %s for %s is not an executable file, falling back\n", expanded, tool)
	}

	if resolver.BundleDir != "" {
		dir, err := homedir.Expand(resolver.BundleDir)
		if err == nil {
			bundled := filepath.Join(dir, binaryName(tool))
			if isExecutableFile(bundled) {
				return bundled, nil
			}
		}
	}

	lookPath := resolver.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if path, err := lookPath(tool); err == nil {
		return path, nil
	}

	return "", &SpawnError{Command: tool, Err: ErrToolNotFound}
}

// ResolveAll resolves each tool once, returning a map of tool name to path.
// The first tool which cannot be found aborts resolution.
func (resolver *Resolver) ResolveAll(tools ...string) (map[string]string, error) {
	resolved := make(map[string]string, len(tools))
	for _, tool := range tools {
		if _, ok := resolved[tool]; ok {
			continue
		}

		path, err := resolver.Resolve(tool)
		if err != nil {
			return nil, err
		}

		log.Emit(logger.DEBUG, "Resolved tool %s to %s\n", tool, path)
		resolved[tool] = path
	}

	return resolved, nil
}

func binaryName(tool string) string {
	if runtime.GOOS == "windows" && filepath.Ext(tool) == "" {
		return tool + ".exe"
	}

	return tool
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	if runtime.GOOS == "windows" {
		return true
	}

	return info.Mode().Perm()&0o111 != 0
}

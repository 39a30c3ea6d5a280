package ingest

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var windowsRoot = regexp.MustCompile(`^(?:[A-Za-z]:[\\/]|\\\\[^\\/]+[\\/][^\\/]+)`)

// validateDestination checks the destination is an absolute path in the
// conventions of the given operating system. On Windows a path starting
// with a forward slash is a POSIX path picked up by mistake and would be
// resolved against the current drive.
func validateDestination(goos string, path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: "destination", Value: path, Reason: "must not be empty"}
	}

	if goos == "windows" {
		if strings.HasPrefix(path, "/") {
			return &ValidationError{Field: "destination", Value: path, Reason: "must be a Windows path, not a POSIX path"}
		}
		if !windowsRoot.MatchString(path) {
			return &ValidationError{Field: "destination", Value: path, Reason: "must start with a drive letter or UNC share"}
		}

		return nil
	}

	if !strings.HasPrefix(path, "/") {
		return &ValidationError{Field: "destination", Value: path, Reason: "must be an absolute path"}
	}

	return nil
}

func validateSource(path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: "source", Value: path, Reason: "must not be empty"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &ValidationError{Field: "source", Value: path, Reason: "does not exist or cannot be read"}
	}
	if !info.IsDir() {
		return &ValidationError{Field: "source", Value: path, Reason: "is not a directory"}
	}

	return nil
}

// validateDisjoint rejects a destination inside the source, which would
// make the staging copy recurse in to itself.
func validateDisjoint(source string, destination string) error {
	rel, err := filepath.Rel(filepath.Clean(source), filepath.Clean(destination))
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return &ValidationError{Field: "destination", Value: destination, Reason: "must not be inside the source"}
	}

	return nil
}

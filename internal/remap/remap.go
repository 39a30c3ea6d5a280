// Package remap converts absolute file paths in to the relative directory
// keys used by directory aliases.
//
// A key is the path of a file's parent directory relative to the scan root,
// using forward slashes on every platform. Files directly inside the root
// use RootKey.
package remap

import (
	"path/filepath"
	"strings"
)

const RootKey = "Root"

// RelativeTo returns the directory key for absPath relative to root.
func RelativeTo(root string, absPath string) string {
	dir := filepath.Dir(filepath.Clean(absPath))
	root = filepath.Clean(root)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == "" {
		return RootKey
	}

	// A file outside the root keeps its full parent path; strip any leading
	// separators so the key never looks absolute.
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = strings.TrimLeft(filepath.ToSlash(dir), "/")
		if rel == "" {
			return RootKey
		}
		return rel
	}

	return filepath.ToSlash(rel)
}

// StagedRelative returns the directory key for a file inside a staging tree.
// The bulk copy nests the source folder as the first component beneath the
// staging root, so that component is dropped; whatever remains is the same
// key RelativeTo would produce against the original source.
func StagedRelative(stagingRoot string, absPath string) string {
	key := RelativeTo(stagingRoot, absPath)
	if key == RootKey {
		return RootKey
	}

	parts := strings.SplitN(key, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return RootKey
	}

	return parts[1]
}

// ParentFolder returns the name of the directory immediately containing absPath.
func ParentFolder(absPath string) string {
	return filepath.Base(filepath.Dir(filepath.Clean(absPath)))
}

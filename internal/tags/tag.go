package tags

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateName = errors.New("a tag with this name already exists")
	ErrTagNotFound   = errors.New("tag does not exist")
	ErrEmptyName     = errors.New("tag name must not be empty")
)

// Tag is a user-defined source label. A tag owns a set of camera model
// strings and a set of relative directory keys; a camera model or directory
// key is owned by at most one tag at a time.
type Tag struct {
	ID               string   `json:"id" mapstructure:"id"`
	Name             string   `json:"name" mapstructure:"name"`
	Color            string   `json:"color" mapstructure:"color"`
	CameraAliases    []string `json:"cameraAliases" mapstructure:"cameraAliases"`
	DirectoryAliases []string `json:"directoryAliases" mapstructure:"directoryAliases"`
}

func (t Tag) String() string {
	return fmt.Sprintf("Tag{ID=%s Name=%s Cameras=%v Directories=%v}", t.ID, t.Name, t.CameraAliases, t.DirectoryAliases)
}

// Alias pairs a directory (or camera) alias with the tag that owns it.
type Alias struct {
	Key string
	Tag Tag
}

// PersistenceError is returned when a change was applied in memory but could
// not be written to the settings document.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist source tags: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func sortedKeys(owners map[string]string, id string) []string {
	keys := make([]string, 0)
	for alias, owner := range owners {
		if owner == id {
			keys = append(keys, alias)
		}
	}

	sort.Strings(keys)
	return keys
}

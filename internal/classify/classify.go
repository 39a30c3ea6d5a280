package classify

import (
	"sort"

	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/hbomb79/Tasaveer/internal/remap"
)

// UnknownCamera is the grouping key for files with no camera model.
const UnknownCamera = "Unknown"

// Group is a set of files sharing a camera model or directory key, along
// with the tag currently assigned to that key (if any).
type Group struct {
	Key     string `json:"key"`
	Count   int    `json:"count"`
	TagID   string `json:"tag_id,omitempty"`
	TagName string `json:"tag_name,omitempty"`
}

type Result struct {
	Cameras     []Group `json:"cameras"`
	Directories []Group `json:"directories"`
	Total       int     `json:"total"`
}

// Classify partitions records by camera model and by directory key
// relative to root. Tags are resolved by exact match only; both lists are
// sorted by descending count, then key.
func Classify(records []media.FileRecord, root string, lookup TagLookup) Result {
	cameras := make(map[string]int)
	directories := make(map[string]int)
	for _, record := range records {
		model := record.CameraModel
		if model == "" {
			model = UnknownCamera
		}

		cameras[model]++
		directories[remap.RelativeTo(root, record.Path)]++
	}

	result := Result{
		Cameras:     make([]Group, 0, len(cameras)),
		Directories: make([]Group, 0, len(directories)),
		Total:       len(records),
	}
	for key, count := range cameras {
		group := Group{Key: key, Count: count}
		if tag, ok := lookup.Resolve(key); ok {
			group.TagID, group.TagName = tag.ID, tag.Name
		}
		result.Cameras = append(result.Cameras, group)
	}
	for key, count := range directories {
		group := Group{Key: key, Count: count}
		if tag, ok := lookup.ResolveDirectory(key); ok {
			group.TagID, group.TagName = tag.ID, tag.Name
		}
		result.Directories = append(result.Directories, group)
	}

	sortGroups(result.Cameras)
	sortGroups(result.Directories)
	return result
}

func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
}

// Assignment is the set of keywords to write to one staged file.
type Assignment struct {
	Path         string
	Keywords     []string
	DirectoryKey string
	// MatchedBy is only meaningful when a directory tag contributed.
	MatchedBy Strategy
}

// Assign computes keywords for files inside a staging tree. A file receives
// the name of its camera tag (exact match) followed by the name of its
// directory tag, resolved through DirectoryMatchers against the staged key.
// Files with no keywords are omitted.
func Assign(records []media.FileRecord, stagingRoot string, lookup TagLookup) []Assignment {
	out := make([]Assignment, 0)
	for _, record := range records {
		key := remap.StagedRelative(stagingRoot, record.Path)
		assignment := Assignment{Path: record.Path, DirectoryKey: key, Keywords: make([]string, 0, 2)}

		if record.CameraModel != "" {
			if tag, ok := lookup.Resolve(record.CameraModel); ok {
				assignment.Keywords = append(assignment.Keywords, tag.Name)
			}
		}

		if tag, strategy, ok := ResolveDirectory(lookup, key, record.Path); ok {
			assignment.MatchedBy = strategy
			if len(assignment.Keywords) == 0 || assignment.Keywords[0] != tag.Name {
				assignment.Keywords = append(assignment.Keywords, tag.Name)
			}
		}

		if len(assignment.Keywords) > 0 {
			out = append(out, assignment)
		}
	}

	return out
}

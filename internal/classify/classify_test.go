package classify_test

import (
	"path/filepath"
	"testing"

	"github.com/hbomb79/Tasaveer/internal/classify"
	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/hbomb79/Tasaveer/internal/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPersistence struct{ content string }

func (m *memoryPersistence) Load() (string, error) { return "{}", nil }
func (m *memoryPersistence) Save(c string) error  { m.content = c; return nil }

func newStore(t *testing.T) *tags.Store {
	t.Helper()
	return tags.NewStore(&memoryPersistence{})
}

func abs(parts ...string) string {
	return filepath.Join(append([]string{string(filepath.Separator)}, parts...)...)
}

func TestClassify_GroupsAndCounts(t *testing.T) {
	store := newStore(t)
	family, err := store.Create("Family", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignCameraAlias("Canon EOS", family.ID))

	root := abs("A", "B")
	records := []media.FileRecord{
		{Path: abs("A", "B", "IMG_0001.jpg"), CameraModel: "Canon EOS"},
		{Path: abs("A", "B", "2023", "IMG_0002.jpg"), CameraModel: "Pixel 7"},
		{Path: abs("A", "B", "2023", "IMG_0003.jpg"), CameraModel: "Pixel 7"},
		{Path: abs("A", "B", "clip.mp4")},
	}

	result := classify.Classify(records, root, store.Snapshot())

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, []classify.Group{
		{Key: "Pixel 7", Count: 2},
		{Key: "Canon EOS", Count: 1, TagID: family.ID, TagName: "Family"},
		{Key: "Unknown", Count: 1},
	}, result.Cameras)
	assert.Equal(t, []classify.Group{
		{Key: "2023", Count: 2},
		{Key: "Root", Count: 2},
	}, result.Directories)

	sum := func(groups []classify.Group) (n int) {
		for _, g := range groups {
			n += g.Count
		}
		return
	}
	assert.Equal(t, len(records), sum(result.Cameras))
	assert.Equal(t, len(records), sum(result.Directories))
}

func TestClassify_Empty(t *testing.T) {
	result := classify.Classify(nil, abs("A"), newStore(t).Snapshot())
	assert.Empty(t, result.Cameras)
	assert.Empty(t, result.Directories)
}

func TestClassify_DirectoryResolutionIsExact(t *testing.T) {
	store := newStore(t)
	trip, err := store.Create("Trip", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignDirectoryAlias("2023", trip.ID))

	result := classify.Classify([]media.FileRecord{
		{Path: abs("A", "2023", "x.jpg")},
		{Path: abs("A", "2023", "06", "y.jpg")},
	}, abs("A"), store.Snapshot())

	require.Len(t, result.Directories, 2)
	for _, g := range result.Directories {
		if g.Key == "2023" {
			assert.Equal(t, trip.ID, g.TagID)
		} else {
			assert.Empty(t, g.TagID, "pre-flight grouping must not use substring matching")
		}
	}
}

func TestResolveDirectory_StrategyOrder(t *testing.T) {
	store := newStore(t)
	exact, err := store.Create("Exact", "")
	require.NoError(t, err)
	sub, err := store.Create("Sub", "")
	require.NoError(t, err)
	longer, err := store.Create("Longer", "")
	require.NoError(t, err)
	parent, err := store.Create("Parent", "")
	require.NoError(t, err)

	require.NoError(t, store.AssignDirectoryAlias("2023/Trip", exact.ID))
	require.NoError(t, store.AssignDirectoryAlias("Trip", sub.ID))
	require.NoError(t, store.AssignDirectoryAlias("Holiday 2024", longer.ID))
	require.NoError(t, store.AssignDirectoryAlias("2024", sub.ID))
	require.NoError(t, store.AssignDirectoryAlias("Scans", parent.ID))
	snap := store.Snapshot()

	tests := []struct {
		name     string
		key      string
		path     string
		tag      string
		strategy classify.Strategy
		found    bool
	}{
		{"exact wins", "2023/Trip", abs("s", "B", "2023", "Trip", "a.jpg"), "Exact", classify.ExactMatch, true},
		{"substring", "2022/Trip/day1", abs("s", "B", "2022", "Trip", "day1", "a.jpg"), "Sub", classify.SubstringMatch, true},
		{"longest substring", "Holiday 2024/x", abs("s", "B", "Holiday 2024", "x", "a.jpg"), "Longer", classify.SubstringMatch, true},
		{"key is not searched inside alias", "Tr", abs("s", "B", "Tr", "a.jpg"), "", classify.ExactMatch, false},
		{"parent folder", "Root", abs("s", "Scans", "a.jpg"), "Parent", classify.ParentFolderMatch, true},
		{"nothing", "Misc", abs("s", "B", "Misc", "a.jpg"), "", classify.ExactMatch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, strategy, ok := classify.ResolveDirectory(snap, tt.key, tt.path)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.tag, tag.Name)
				assert.Equal(t, tt.strategy, strategy)
			}
		})
	}
}

func TestAssign_StagedKeywords(t *testing.T) {
	store := newStore(t)
	family, err := store.Create("Family", "")
	require.NoError(t, err)
	trip, err := store.Create("Trip", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignCameraAlias("Canon EOS", family.ID))
	require.NoError(t, store.AssignDirectoryAlias("2023", trip.ID))
	require.NoError(t, store.AssignDirectoryAlias("Root", family.ID))

	staging := abs("X", "stage")
	records := []media.FileRecord{
		{Path: abs("X", "stage", "B", "IMG_0001.jpg"), CameraModel: "Canon EOS"},
		{Path: abs("X", "stage", "B", "2023", "y.jpg"), CameraModel: "Canon EOS"},
		{Path: abs("X", "stage", "B", "2023", "z.jpg")},
		{Path: abs("X", "stage", "B", "Other", "w.jpg"), CameraModel: "Pixel 7"},
	}

	assignments := classify.Assign(records, staging, store.Snapshot())

	require.Len(t, assignments, 3)
	assert.Equal(t, []string{"Family"}, assignments[0].Keywords, "camera and Root directory both map to Family")
	assert.Equal(t, "Root", assignments[0].DirectoryKey)
	assert.Equal(t, []string{"Family", "Trip"}, assignments[1].Keywords)
	assert.Equal(t, []string{"Trip"}, assignments[2].Keywords)
	assert.Equal(t, "2023", assignments[2].DirectoryKey)
}

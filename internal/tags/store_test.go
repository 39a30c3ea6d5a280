package tags_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Tasaveer/internal/settings"
	"github.com/hbomb79/Tasaveer/internal/tags"
	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPersistence struct {
	content string
	loadErr error
	saveErr error
	saves   int
}

func (m *memoryPersistence) Load() (string, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	if m.content == "" {
		return "{}", nil
	}
	return m.content, nil
}

func (m *memoryPersistence) Save(content string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.content = content
	return nil
}

func TestCreate_DuplicateNameRejected(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})

	_, err := store.Create("Family", "#ff0000")
	require.NoError(t, err)

	_, err = store.Create("Family", "#00ff00")
	assert.ErrorIs(t, err, tags.ErrDuplicateName)
	assert.Len(t, store.Tags(), 1)

	// Names are case-sensitive
	_, err = store.Create("family", "#00ff00")
	assert.NoError(t, err)
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	_, err := store.Create("  ", "")
	assert.ErrorIs(t, err, tags.ErrEmptyName)
}

func TestAssignCameraAlias_MovesOwnership(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	a, err := store.Create("A", "")
	require.NoError(t, err)
	b, err := store.Create("B", "")
	require.NoError(t, err)

	require.NoError(t, store.AssignCameraAlias("Pixel 7", a.ID))
	require.NoError(t, store.AssignCameraAlias("Pixel 7", b.ID))

	resolved, ok := store.Resolve("Pixel 7")
	require.True(t, ok)
	assert.Equal(t, b.ID, resolved.ID)

	gotA, _ := store.Get(a.ID)
	gotB, _ := store.Get(b.ID)
	assert.Empty(t, gotA.CameraAliases)
	assert.Equal(t, []string{"Pixel 7"}, gotB.CameraAliases)
}

func TestAssignAlias_NoneRemoves(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	a, err := store.Create("A", "")
	require.NoError(t, err)

	require.NoError(t, store.AssignDirectoryAlias("2023/Trip", a.ID))
	require.NoError(t, store.AssignDirectoryAlias("2023/Trip", ""))

	_, ok := store.ResolveDirectory("2023/Trip")
	assert.False(t, ok)
}

func TestAssignAlias_UnknownTag(t *testing.T) {
	persistence := &memoryPersistence{}
	store := tags.NewStore(persistence)
	a, err := store.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignCameraAlias("X100", a.ID))
	saves := persistence.saves

	err = store.AssignCameraAlias("X100", "does-not-exist")
	assert.ErrorIs(t, err, tags.ErrTagNotFound)

	resolved, ok := store.Resolve("X100")
	require.True(t, ok)
	assert.Equal(t, a.ID, resolved.ID)
	assert.Equal(t, saves, persistence.saves, "failed assignment must not persist")
}

func TestAssignAlias_Idempotent(t *testing.T) {
	persistence := &memoryPersistence{}
	store := tags.NewStore(persistence)
	a, err := store.Create("A", "")
	require.NoError(t, err)

	require.NoError(t, store.AssignCameraAlias("X100", a.ID))
	saves := persistence.saves
	require.NoError(t, store.AssignCameraAlias("X100", a.ID))

	assert.Equal(t, saves, persistence.saves)
	got, _ := store.Get(a.ID)
	assert.Equal(t, []string{"X100"}, got.CameraAliases)
}

func TestResolve_ExactMatchOnly(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	a, err := store.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignCameraAlias("Canon EOS R5", a.ID))

	tests := []struct {
		model string
		found bool
	}{
		{"Canon EOS R5", true},
		{"Canon EOS", false},
		{"canon eos r5", false},
		{"Canon EOS R5 ", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			_, ok := store.Resolve(tt.model)
			assert.Equal(t, tt.found, ok)
		})
	}
}

func TestDelete_ReleasesAliases(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	a, err := store.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignCameraAlias("X100", a.ID))
	require.NoError(t, store.AssignDirectoryAlias("Root", a.ID))

	require.NoError(t, store.Delete(a.ID))

	_, ok := store.Resolve("X100")
	assert.False(t, ok)
	_, ok = store.ResolveDirectory("Root")
	assert.False(t, ok)
	assert.ErrorIs(t, store.Delete(a.ID), tags.ErrTagNotFound)
}

func TestRename(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	a, err := store.Create("A", "")
	require.NoError(t, err)
	_, err = store.Create("B", "")
	require.NoError(t, err)

	assert.ErrorIs(t, store.Rename(a.ID, "B"), tags.ErrDuplicateName)
	assert.NoError(t, store.Rename(a.ID, "A"), "renaming to own name is allowed")
	require.NoError(t, store.Rename(a.ID, "Holiday"))

	found, ok := store.Find("Holiday")
	require.True(t, ok)
	assert.Equal(t, a.ID, found.ID)
}

func TestPersistence_RoundTripPreservesOtherFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	fileStore := settings.NewFileStore(path)
	require.NoError(t, fileStore.Save(`{"archivePath":"/archive"}`))

	store := tags.NewStore(fileStore)
	name := random.String(12, random.Alphanumeric)
	a, err := store.Create(name, "#123456")
	require.NoError(t, err)
	require.NoError(t, store.AssignCameraAlias("Pixel 7", a.ID))
	require.NoError(t, store.AssignDirectoryAlias("2023/Trip", a.ID))

	reloaded := tags.NewStore(settings.NewFileStore(path))
	assert.Equal(t, store.Tags(), reloaded.Tags())

	raw, err := fileStore.Load()
	require.NoError(t, err)
	doc, err := settings.ParseDocument(raw)
	require.NoError(t, err)

	var archive string
	_, err = doc.Field("archivePath", &archive)
	require.NoError(t, err)
	assert.Equal(t, "/archive", archive)
}

func TestLoad_FailuresYieldEmptyStore(t *testing.T) {
	tests := []struct {
		name        string
		persistence *memoryPersistence
	}{
		{"read failure", &memoryPersistence{loadErr: errors.New("disk on fire")}},
		{"corrupt document", &memoryPersistence{content: "{not json"}},
		{"wrong field type", &memoryPersistence{content: `{"sourceTags": "nope"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tags.NewStore(tt.persistence)
			assert.Empty(t, store.Tags())
		})
	}
}

func TestLoad_SkipsMalformedEntries(t *testing.T) {
	persistence := &memoryPersistence{content: `{"sourceTags": [
		{"id": "1", "name": "Family", "color": "red", "cameraAliases": ["X100"], "directoryAliases": []},
		{"id": "2", "name": 12},
		{"id": "3", "name": "Work", "cameraAliases": ["X100"]}
	]}`}

	store := tags.NewStore(persistence)
	all := store.Tags()
	require.Len(t, all, 2)
	assert.Equal(t, "Family", all[0].Name)
	assert.Equal(t, []string{"X100"}, all[0].CameraAliases)
	assert.Empty(t, all[1].CameraAliases, "alias already owned by an earlier tag")
}

func TestSaveFailure_KeepsInMemoryState(t *testing.T) {
	persistence := &memoryPersistence{}
	store := tags.NewStore(persistence)
	persistence.saveErr = errors.New("read-only filesystem")

	tag, err := store.Create("A", "")
	var persistErr *tags.PersistenceError
	assert.ErrorAs(t, err, &persistErr)

	_, ok := store.Get(tag.ID)
	assert.True(t, ok)

	persistence.saveErr = nil
	assert.NoError(t, store.Save())
	assert.Contains(t, persistence.content, tag.ID)
}

func TestSnapshot_IsolatedFromLaterMutations(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	a, err := store.Create("A", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignDirectoryAlias("Trip", a.ID))

	snap := store.Snapshot()
	require.NoError(t, store.AssignDirectoryAlias("Trip", ""))
	require.NoError(t, store.AssignDirectoryAlias("Work", a.ID))

	_, ok := snap.ResolveDirectory("Trip")
	assert.True(t, ok)
	_, ok = snap.ResolveDirectory("Work")
	assert.False(t, ok)
	assert.Len(t, snap.DirectoryAliases(), 1)
}

func TestSuggest(t *testing.T) {
	store := tags.NewStore(&memoryPersistence{})
	_, err := store.Create("Family", "")
	require.NoError(t, err)
	_, err = store.Create("Work", "")
	require.NoError(t, err)

	suggestion, ok := store.Suggest("Famliy")
	assert.True(t, ok)
	assert.Equal(t, "Family", suggestion)

	_, ok = store.Suggest("zzzzzzzzzzzz")
	assert.False(t, ok)
}

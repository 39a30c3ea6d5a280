package tags

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/google/uuid"
	"github.com/hbomb79/Tasaveer/internal/settings"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

var log = logger.Get("TagStore")

// SettingsField is the name of the settings document field the tag list is
// persisted under.
const SettingsField = "sourceTags"

// minSuggestionSimilarity is the lowest similarity score for which Suggest
// will offer an alternative tag name.
const minSuggestionSimilarity = 0.5

type entry struct {
	id    string
	name  string
	color string
}

// Store holds the user's source tags along with the camera and directory
// aliases assigned to them. Every mutation is written through to the
// settings document immediately.
type Store struct {
	sync.Mutex
	persistence     settings.Persistence
	entries         []*entry
	cameraOwners    map[string]string
	directoryOwners map[string]string
}

// NewStore constructs a Store and loads any previously persisted tags. A
// missing or corrupt document results in an empty store; failures are
// logged rather than returned.
func NewStore(persistence settings.Persistence) *Store {
	store := &Store{
		persistence:     persistence,
		entries:         make([]*entry, 0),
		cameraOwners:    make(map[string]string),
		directoryOwners: make(map[string]string),
	}

	if err := store.load(); err != nil {
		log.Emit(logger.WARNING, "Failed to load source tags, defaulting to none: %v\n", err)
		store.entries = make([]*entry, 0)
		store.cameraOwners = make(map[string]string)
		store.directoryOwners = make(map[string]string)
	}

	return store
}

func (store *Store) load() error {
	raw, err := store.persistence.Load()
	if err != nil {
		return err
	}

	doc, err := settings.ParseDocument(raw)
	if err != nil {
		return err
	}

	var persisted []interface{}
	if _, err := doc.Field(SettingsField, &persisted); err != nil {
		return err
	}

	for _, v := range persisted {
		var tag Tag
		if err := mapstructure.Decode(v, &tag); err != nil {
			log.Emit(logger.ERROR, "Failure to decode persisted source tag:\n\t%v\n", err.Error())
			continue
		}

		store.restore(tag)
	}

	log.Emit(logger.DEBUG, "Loaded %d source tags\n", len(store.entries))
	return nil
}

func (store *Store) restore(tag Tag) {
	if strings.TrimSpace(tag.Name) == "" {
		log.Emit(logger.WARNING, "Ignoring persisted source tag with no name (id=%s)\n", tag.ID)
		return
	}
	if store.findByName(tag.Name) != nil {
		log.Emit(logger.WARNING, "Ignoring persisted source tag %q: name already in use\n", tag.Name)
		return
	}
	if tag.ID == "" || store.findByID(tag.ID) != nil {
		tag.ID = uuid.NewString()
	}

	store.entries = append(store.entries, &entry{id: tag.ID, name: tag.Name, color: tag.Color})
	claim := func(owners map[string]string, aliases []string, kind string) {
		for _, alias := range aliases {
			if owner, ok := owners[alias]; ok && owner != tag.ID {
				log.Emit(logger.WARNING, "%s alias %q is claimed by more than one tag, keeping first owner\n", kind, alias)
				continue
			}
			owners[alias] = tag.ID
		}
	}

	claim(store.cameraOwners, tag.CameraAliases, "Camera")
	claim(store.directoryOwners, tag.DirectoryAliases, "Directory")
}

// Tags returns a copy of every tag, in creation order.
func (store *Store) Tags() []Tag {
	store.Lock()
	defer store.Unlock()

	return store.tagsLocked()
}

func (store *Store) tagsLocked() []Tag {
	out := make([]Tag, 0, len(store.entries))
	for _, e := range store.entries {
		out = append(out, store.tagOf(e))
	}

	return out
}

func (store *Store) tagOf(e *entry) Tag {
	return Tag{
		ID:               e.id,
		Name:             e.name,
		Color:            e.color,
		CameraAliases:    sortedKeys(store.cameraOwners, e.id),
		DirectoryAliases: sortedKeys(store.directoryOwners, e.id),
	}
}

// Get returns the tag with the given ID.
func (store *Store) Get(id string) (Tag, bool) {
	store.Lock()
	defer store.Unlock()

	if e := store.findByID(id); e != nil {
		return store.tagOf(e), true
	}

	return Tag{}, false
}

// Find returns the tag with exactly this name.
func (store *Store) Find(name string) (Tag, bool) {
	store.Lock()
	defer store.Unlock()

	if e := store.findByName(name); e != nil {
		return store.tagOf(e), true
	}

	return Tag{}, false
}

// Suggest returns the existing tag name most similar to the one given, if
// any is similar enough to be a plausible typo.
func (store *Store) Suggest(name string) (string, bool) {
	store.Lock()
	defer store.Unlock()

	metric := metrics.NewLevenshtein()
	metric.CaseSensitive = false

	best, bestScore := "", 0.0
	for _, e := range store.entries {
		if score := strutil.Similarity(name, e.name, metric); score > bestScore {
			best, bestScore = e.name, score
		}
	}

	return best, bestScore >= minSuggestionSimilarity
}

// Create adds a new tag with a generated ID and no aliases.
func (store *Store) Create(name string, color string) (Tag, error) {
	store.Lock()
	defer store.Unlock()

	if strings.TrimSpace(name) == "" {
		return Tag{}, ErrEmptyName
	}
	if store.findByName(name) != nil {
		return Tag{}, fmt.Errorf("create tag %q: %w", name, ErrDuplicateName)
	}

	e := &entry{id: uuid.NewString(), name: name, color: color}
	store.entries = append(store.entries, e)
	log.Emit(logger.NEW, "Created source tag %q (%s)\n", name, e.id)

	return store.tagOf(e), store.persistLocked()
}

// Rename changes the name of an existing tag. Names remain unique.
func (store *Store) Rename(id string, name string) error {
	store.Lock()
	defer store.Unlock()

	e := store.findByID(id)
	if e == nil {
		return fmt.Errorf("rename tag %s: %w", id, ErrTagNotFound)
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if existing := store.findByName(name); existing != nil && existing != e {
		return fmt.Errorf("rename tag %s to %q: %w", id, name, ErrDuplicateName)
	}

	e.name = name
	return store.persistLocked()
}

// SetColor changes the colour token of an existing tag.
func (store *Store) SetColor(id string, color string) error {
	store.Lock()
	defer store.Unlock()

	e := store.findByID(id)
	if e == nil {
		return fmt.Errorf("recolor tag %s: %w", id, ErrTagNotFound)
	}

	e.color = color
	return store.persistLocked()
}

// Delete removes the tag and releases every alias it owned.
func (store *Store) Delete(id string) error {
	store.Lock()
	defer store.Unlock()

	idx := -1
	for i, e := range store.entries {
		if e.id == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("delete tag %s: %w", id, ErrTagNotFound)
	}

	removed := store.entries[idx]
	store.entries = append(store.entries[:idx], store.entries[idx+1:]...)
	releaseAll(store.cameraOwners, id)
	releaseAll(store.directoryOwners, id)
	log.Emit(logger.REMOVE, "Deleted source tag %q (%s)\n", removed.name, id)

	return store.persistLocked()
}

// AssignCameraAlias makes the tag with the given ID the sole owner of the
// camera model. An empty tagID removes the alias from whichever tag held it.
func (store *Store) AssignCameraAlias(model string, tagID string) error {
	return store.assign(store.cameraOwners, model, tagID)
}

// AssignDirectoryAlias makes the tag with the given ID the sole owner of
// the relative directory key. An empty tagID removes the alias.
func (store *Store) AssignDirectoryAlias(key string, tagID string) error {
	return store.assign(store.directoryOwners, key, tagID)
}

func (store *Store) assign(owners map[string]string, alias string, tagID string) error {
	store.Lock()
	defer store.Unlock()

	if tagID != "" && store.findByID(tagID) == nil {
		return fmt.Errorf("assign alias %q: %w", alias, ErrTagNotFound)
	}

	current, owned := owners[alias]
	if tagID == "" {
		if !owned {
			return nil
		}
		delete(owners, alias)
	} else {
		if owned && current == tagID {
			return nil
		}
		owners[alias] = tagID
	}

	return store.persistLocked()
}

// Resolve returns the tag owning the camera model, by exact match.
func (store *Store) Resolve(model string) (Tag, bool) {
	store.Lock()
	defer store.Unlock()

	return store.resolveLocked(store.cameraOwners, model)
}

// ResolveDirectory returns the tag owning the directory key, by exact match.
func (store *Store) ResolveDirectory(key string) (Tag, bool) {
	store.Lock()
	defer store.Unlock()

	return store.resolveLocked(store.directoryOwners, key)
}

func (store *Store) resolveLocked(owners map[string]string, alias string) (Tag, bool) {
	id, ok := owners[alias]
	if !ok {
		return Tag{}, false
	}

	if e := store.findByID(id); e != nil {
		return store.tagOf(e), true
	}

	return Tag{}, false
}

// Snapshot captures the current tags so that a classification pass sees a
// consistent view even if the store is mutated concurrently.
func (store *Store) Snapshot() *Snapshot {
	store.Lock()
	defer store.Unlock()

	snap := &Snapshot{
		tags:        make(map[string]Tag, len(store.entries)),
		cameras:     make(map[string]string, len(store.cameraOwners)),
		directories: make(map[string]string, len(store.directoryOwners)),
	}
	for _, tag := range store.tagsLocked() {
		snap.tags[tag.ID] = tag
	}
	for k, v := range store.cameraOwners {
		snap.cameras[k] = v
	}
	for k, v := range store.directoryOwners {
		snap.directories[k] = v
	}

	return snap
}

// Save forces the current state to be written to the settings document.
func (store *Store) Save() error {
	store.Lock()
	defer store.Unlock()

	return store.persistLocked()
}

func (store *Store) persistLocked() error {
	raw, err := store.persistence.Load()
	if err != nil {
		log.Emit(logger.ERROR, "Unable to read settings before saving source tags: %v\n", err)
		return &PersistenceError{Err: err}
	}

	doc, err := settings.ParseDocument(raw)
	if err != nil {
		log.Emit(logger.WARNING, "Existing settings document is corrupt and will be replaced: %v\n", err)
		doc, _ = settings.ParseDocument("")
	}

	if err := doc.SetField(SettingsField, store.tagsLocked()); err != nil {
		return &PersistenceError{Err: err}
	}

	if err := store.persistence.Save(doc.String()); err != nil {
		log.Emit(logger.ERROR, "Unable to save source tags: %v\n", err)
		return &PersistenceError{Err: err}
	}

	return nil
}

func (store *Store) findByID(id string) *entry {
	for _, e := range store.entries {
		if e.id == id {
			return e
		}
	}

	return nil
}

func (store *Store) findByName(name string) *entry {
	for _, e := range store.entries {
		if e.name == name {
			return e
		}
	}

	return nil
}

func releaseAll(owners map[string]string, id string) {
	for alias, owner := range owners {
		if owner == id {
			delete(owners, alias)
		}
	}
}

// Snapshot is an immutable copy of the tag store.
type Snapshot struct {
	tags        map[string]Tag
	cameras     map[string]string
	directories map[string]string
}

func (snap *Snapshot) Resolve(model string) (Tag, bool) {
	return snap.lookup(snap.cameras, model)
}

func (snap *Snapshot) ResolveDirectory(key string) (Tag, bool) {
	return snap.lookup(snap.directories, key)
}

// DirectoryAliases lists every directory alias and its owning tag, sorted by
// tag name and then alias.
func (snap *Snapshot) DirectoryAliases() []Alias {
	out := make([]Alias, 0, len(snap.directories))
	for alias, id := range snap.directories {
		if tag, ok := snap.tags[id]; ok {
			out = append(out, Alias{Key: alias, Tag: tag})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Tag.Name != out[j].Tag.Name {
			return out[i].Tag.Name < out[j].Tag.Name
		}
		return out[i].Key < out[j].Key
	})

	return out
}

func (snap *Snapshot) lookup(owners map[string]string, alias string) (Tag, bool) {
	id, ok := owners[alias]
	if !ok {
		return Tag{}, false
	}

	tag, ok := snap.tags[id]
	return tag, ok
}

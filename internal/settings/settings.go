package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("Settings")

const emptyDocument = "{}"

// Persistence loads and saves the settings document as an opaque JSON
// string. Implementations must treat a document that has never been saved
// as "{}" rather than an error.
type Persistence interface {
	Load() (string, error)
	Save(string) error
}

// FileStore is a Persistence backed by a single JSON file on disk.
type FileStore struct {
	sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (store *FileStore) Path() string { return store.path }

// Load reads the settings file. A missing file yields an empty document.
func (store *FileStore) Load() (string, error) {
	store.Lock()
	defer store.Unlock()

	content, err := os.ReadFile(store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Emit(logger.DEBUG, "Settings file %s does not exist, using empty document\n", store.path)
			return emptyDocument, nil
		}

		return "", fmt.Errorf("failed to read settings from %s: %w", store.path, err)
	}

	return string(content), nil
}

// Save writes the document, creating the parent directories if required.
func (store *FileStore) Save(document string) error {
	store.Lock()
	defer store.Unlock()

	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	if err := os.WriteFile(store.path, []byte(document), 0o644); err != nil {
		return fmt.Errorf("failed to write settings to %s: %w", store.path, err)
	}

	return nil
}

// Document is a parsed view over the settings JSON. Only the top-level fields
// are decoded; everything else is kept as raw JSON so that fields owned by
// other parts of the application survive a round trip untouched.
type Document struct {
	fields map[string]json.RawMessage
}

// ParseDocument decodes the given JSON object. An empty string is treated
// as an empty document.
func ParseDocument(raw string) (*Document, error) {
	doc := &Document{fields: make(map[string]json.RawMessage)}
	if raw == "" {
		return doc, nil
	}

	if err := json.Unmarshal([]byte(raw), &doc.fields); err != nil {
		return nil, fmt.Errorf("settings document is not a JSON object: %w", err)
	}
	if doc.fields == nil {
		doc.fields = make(map[string]json.RawMessage)
	}

	return doc, nil
}

// Has returns true if the document contains a top-level field with this name.
func (doc *Document) Has(name string) bool {
	_, ok := doc.fields[name]
	return ok
}

// Field decodes the named top-level field in to out. If the field does not
// exist, out is left untouched and false is returned.
func (doc *Document) Field(name string, out any) (bool, error) {
	raw, ok := doc.fields[name]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("settings field %q could not be decoded: %w", name, err)
	}

	return true, nil
}

// SetField replaces (or adds) the named top-level field.
func (doc *Document) SetField(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings field %q could not be encoded: %w", name, err)
	}

	doc.fields[name] = raw
	return nil
}

// String re-encodes the document. Keys are emitted in sorted order.
func (doc *Document) String() string {
	out, err := json.MarshalIndent(doc.fields, "", "  ")
	if err != nil {
		// Every field is either valid raw JSON from the parser or the
		// output of json.Marshal.
		panic(fmt.Sprintf("settings document failed to encode: %v", err))
	}

	return string(out)
}

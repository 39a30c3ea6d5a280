package classify

import (
	"strings"

	"github.com/hbomb79/Tasaveer/internal/remap"
	"github.com/hbomb79/Tasaveer/internal/tags"
)

// TagLookup is the read-only view of the tag store a classification pass
// works against. *tags.Snapshot satisfies it.
type TagLookup interface {
	Resolve(model string) (tags.Tag, bool)
	ResolveDirectory(key string) (tags.Tag, bool)
	DirectoryAliases() []tags.Alias
}

type Strategy int

const (
	ExactMatch Strategy = iota
	SubstringMatch
	ParentFolderMatch
)

func (e Strategy) Values() []string {
	return []string{"EXACT", "SUBSTRING", "PARENT_FOLDER"}
}

func (e Strategy) String() string {
	return e.Values()[e]
}

func (e Strategy) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// DirectoryMatchers is the order in which strategies are attempted when
// resolving the directory tag of a staged file. The first to succeed wins.
var DirectoryMatchers = []Strategy{ExactMatch, SubstringMatch, ParentFolderMatch}

// Match resolves a directory tag using this strategy. key is the file's
// directory key and path its absolute location.
func (e Strategy) Match(lookup TagLookup, key string, path string) (tags.Tag, bool) {
	switch e {
	case ExactMatch:
		return lookup.ResolveDirectory(key)
	case SubstringMatch:
		return matchSubstring(lookup, key)
	case ParentFolderMatch:
		return lookup.ResolveDirectory(remap.ParentFolder(path))
	}

	return tags.Tag{}, false
}

// matchSubstring finds aliases contained within the key. The longest alias
// wins; DirectoryAliases is sorted by tag name then alias, so the first of
// equally long candidates is kept.
func matchSubstring(lookup TagLookup, key string) (tags.Tag, bool) {
	var (
		best  tags.Alias
		found bool
	)
	for _, alias := range lookup.DirectoryAliases() {
		if alias.Key == "" || !strings.Contains(key, alias.Key) {
			continue
		}

		if !found || len(alias.Key) > len(best.Key) {
			best, found = alias, true
		}
	}

	return best.Tag, found
}

// ResolveDirectory runs the ordered DirectoryMatchers and reports which
// strategy produced the tag.
func ResolveDirectory(lookup TagLookup, key string, path string) (tags.Tag, Strategy, bool) {
	for _, strategy := range DirectoryMatchers {
		if tag, ok := strategy.Match(lookup, key, path); ok {
			return tag, strategy, true
		}
	}

	return tags.Tag{}, ExactMatch, false
}

package indexing

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which documentation source a record came from
type Kind string

const (
	KindConfig Kind = "config" // configuration setting
	KindVar    Kind = "var"    // display variable
	KindLua    Kind = "lua"    // Lua API entry
)

// Kinds lists every kind in index order
var Kinds = []Kind{KindConfig, KindVar, KindLua}

// Valid reports whether k belongs to the closed set of kinds
func (k Kind) Valid() bool {
	switch k {
	case KindConfig, KindVar, KindLua:
		return true
	}
	return false
}

// UnmarshalJSON rejects kinds outside the closed set so a bad artifact fails
// to load instead of producing records nothing can navigate to.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !Kind(s).Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	*k = Kind(s)
	return nil
}

// DocEntry is one entry of a YAML documentation source
type DocEntry struct {
	Name    string   `yaml:"name" json:"name"`
	Desc    string   `yaml:"desc" json:"desc"`
	Default *string  `yaml:"-" json:"default,omitempty"` // nil when the source has no default
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
	HasArgs bool     `yaml:"-" json:"-"` // distinguishes "args: []" from no args key
}

// DocRecord is the flat, searchable form of a DocEntry
type DocRecord struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// TokenField is the tokenized form of one indexed key of a record
type TokenField struct {
	Terms []string `json:"t"`
	Norm  float64  `json:"n"` // field-length norm: 1/sqrt(len(Terms))
}

// TokenRecord holds the tokenized keys of the record at list position Index
type TokenRecord struct {
	Index  int          `json:"i"`
	Fields []TokenField `json:"$"` // one per TokenIndex.Keys entry
}

// TokenIndex is the precomputed fuzzy-search structure
type TokenIndex struct {
	Keys    []string      `json:"keys"`
	Records []TokenRecord `json:"records"`
}

// SearchIndex is the serialized search artifact
type SearchIndex struct {
	List  []DocRecord `json:"list"`
	Index TokenIndex  `json:"index"`
}

// Sources groups the three documentation collections
type Sources struct {
	Config []DocEntry
	Vars   []DocEntry
	Lua    []DocEntry
}

// Count returns the number of entries of the given kind
func (s Sources) Count(kind Kind) int {
	switch kind {
	case KindConfig:
		return len(s.Config)
	case KindVar:
		return len(s.Vars)
	case KindLua:
		return len(s.Lua)
	}
	return 0
}

// Lookup finds the source entry for kind and name
func (s Sources) Lookup(kind Kind, name string) (DocEntry, bool) {
	var entries []DocEntry
	switch kind {
	case KindConfig:
		entries = s.Config
	case KindVar:
		entries = s.Vars
	case KindLua:
		entries = s.Lua
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return DocEntry{}, false
}

package indexing

import "errors"

const (
	// MaxDescriptionChars bounds record descriptions (in characters) to keep
	// the artifact small
	MaxDescriptionChars = 121

	// ExcerptChars is the length of the description shown next to a result
	ExcerptChars = 120

	// IndexSchemaVersion increments when the artifact layout or tokenization changes
	// v1: name/desc keys, unicode tokenizer + lowercase
	IndexSchemaVersion = 1

	// Source file names inside the docs directory
	ConfigSettingsFile = "config_settings.yaml"
	VariablesFile      = "variables.yaml"
	LuaFile            = "lua.yaml"
)

// Indexed keys, in TokenRecord.Fields order
const (
	KeyName = "name"
	KeyDesc = "desc"
)

// IndexKeys are the record fields covered by the token index
var IndexKeys = []string{KeyName, KeyDesc}

var (
	// ErrUnknownKind is returned for a kind outside config/var/lua
	ErrUnknownKind = errors.New("unknown documentation kind")

	// ErrSchemaVersion is returned when an artifact was built by a different schema version
	ErrSchemaVersion = errors.New("index schema version mismatch")
)

// SourceFile returns the YAML file name for a kind
func SourceFile(kind Kind) string {
	switch kind {
	case KindConfig:
		return ConfigSettingsFile
	case KindVar:
		return VariablesFile
	case KindLua:
		return LuaFile
	}
	return ""
}

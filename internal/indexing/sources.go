package indexing

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML keeps default and args as present-or-absent. Scalar defaults
// of any YAML type are kept as their source text.
func (e *DocEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name    string    `yaml:"name"`
		Desc    string    `yaml:"desc"`
		Default yaml.Node `yaml:"default"`
		Args    yaml.Node `yaml:"args"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*e = DocEntry{Name: raw.Name, Desc: raw.Desc}

	if present(raw.Default) {
		var value string
		if raw.Default.Kind == yaml.ScalarNode {
			value = raw.Default.Value
		} else {
			out, err := yaml.Marshal(&raw.Default)
			if err != nil {
				return fmt.Errorf("entry %q: failed to render default: %w", raw.Name, err)
			}
			value = strings.TrimSpace(string(out))
		}
		e.Default = &value
	}

	if present(raw.Args) {
		var args []string
		if err := raw.Args.Decode(&args); err != nil {
			return fmt.Errorf("entry %q: failed to decode args: %w", raw.Name, err)
		}
		if args == nil {
			args = []string{}
		}
		e.Args = args
		e.HasArgs = true
	}

	return nil
}

// present reports whether a key was set to a non-null value
func present(n yaml.Node) bool {
	return n.Kind != 0 && n.ShortTag() != "!!null"
}

// ParseEntries parses a YAML documentation source. Both layouts used by the
// docs are accepted: a top-level list of entries, or a mapping whose
// "values" key holds the list.
func ParseEntries(data []byte) ([]DocEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var entries []DocEntry
		if err := root.Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to decode entries: %w", err)
		}
		return entries, nil
	case yaml.MappingNode:
		var wrapped struct {
			Values []DocEntry `yaml:"values"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode entries: %w", err)
		}
		return wrapped.Values, nil
	}

	return nil, fmt.Errorf("unexpected YAML document (line %d): want a list or a mapping with values", root.Line)
}

// LoadEntries reads and parses one YAML documentation source
func LoadEntries(path string) ([]DocEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	entries, err := ParseEntries(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// LoadSources loads the three documentation sources from dir. A missing
// source is logged and treated as empty. It returns the files actually read.
func LoadSources(dir string) (Sources, []string, error) {
	var src Sources
	var files []string

	for _, kind := range Kinds {
		path := filepath.Join(dir, SourceFile(kind))
		entries, err := LoadEntries(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Printf("Warning: %s not found, no %s entries will be indexed", path, kind)
				continue
			}
			return Sources{}, nil, err
		}
		src.set(kind, entries)
		files = append(files, path)
	}

	return src, files, nil
}

// ParseSources parses the three sources from in-memory data keyed by kind
func ParseSources(data map[Kind][]byte) (Sources, error) {
	var src Sources
	for _, kind := range Kinds {
		raw, ok := data[kind]
		if !ok {
			continue
		}
		entries, err := ParseEntries(raw)
		if err != nil {
			return Sources{}, fmt.Errorf("%s: %w", SourceFile(kind), err)
		}
		src.set(kind, entries)
	}
	return src, nil
}

func (s *Sources) set(kind Kind, entries []DocEntry) {
	switch kind {
	case KindConfig:
		s.Config = entries
	case KindVar:
		s.Vars = entries
	case KindLua:
		s.Lua = entries
	}
}

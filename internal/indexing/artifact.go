package indexing

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/artifact.schema.json
var artifactSchemaJSON []byte

const artifactSchemaURL = "https://conky.cc/schema/search-index.json"

var artifactSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(artifactSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse artifact schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(artifactSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add artifact schema: %w", err)
	}
	return compiler.Compile(artifactSchemaURL)
})

// EncodeArtifact serializes the index as a single JSON document
func EncodeArtifact(w io.Writer, idx *SearchIndex) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(idx); err != nil {
		return fmt.Errorf("failed to encode search index: %w", err)
	}
	return nil
}

// MarshalArtifact returns the serialized artifact bytes
func MarshalArtifact(idx *SearchIndex) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeArtifact(&buf, idx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArtifact validates and deserializes an artifact
func DecodeArtifact(data []byte) (*SearchIndex, error) {
	schema, err := artifactSchema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("search index is not valid JSON: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("search index failed schema validation: %w", err)
	}

	var idx SearchIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode search index: %w", err)
	}
	if err := idx.check(); err != nil {
		return nil, err
	}
	return &idx, nil
}

// ReadArtifact reads, validates and deserializes an artifact
func ReadArtifact(r io.Reader) (*SearchIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read search index: %w", err)
	}
	return DecodeArtifact(data)
}

// ReadArtifactFile loads an artifact from disk
func ReadArtifactFile(path string) (*SearchIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search index: %w", err)
	}
	return DecodeArtifact(data)
}

// WriteArtifactFile writes the artifact through a temp file and rename so
// readers never observe a partial document
func WriteArtifactFile(path string, idx *SearchIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	data, err := MarshalArtifact(idx)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp index: %w", err)
	}
	return nil
}

// check verifies the token index lines up with the record list
func (idx *SearchIndex) check() error {
	if !slices.Equal(idx.Index.Keys, IndexKeys) {
		return fmt.Errorf("%w: index keys %v, want %v", ErrSchemaVersion, idx.Index.Keys, IndexKeys)
	}
	if len(idx.Index.Records) != len(idx.List) {
		return fmt.Errorf("search index has %d token records for %d list entries",
			len(idx.Index.Records), len(idx.List))
	}

	seen := make([]bool, len(idx.List))
	for _, rec := range idx.Index.Records {
		if rec.Index < 0 || rec.Index >= len(idx.List) {
			return fmt.Errorf("token record points outside the list (index %d)", rec.Index)
		}
		if seen[rec.Index] {
			return fmt.Errorf("duplicate token record for list entry %d", rec.Index)
		}
		seen[rec.Index] = true
		if len(rec.Fields) != len(idx.Index.Keys) {
			return fmt.Errorf("token record %d has %d fields, want %d",
				rec.Index, len(rec.Fields), len(idx.Index.Keys))
		}
	}
	return nil
}

package indexing

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Manifest describes a built artifact. It is written next to the artifact.
type Manifest struct {
	SchemaVersion  int            `toml:"schema_version"`
	BuiltAt        time.Time      `toml:"built_at"`
	MaxDescription int            `toml:"max_description"`
	Records        int            `toml:"records"`
	Counts         map[string]int `toml:"counts"`
	Sources        []string       `toml:"sources,omitempty"`
}

// NewManifest summarizes idx as built with opts from the given source files
func NewManifest(idx *SearchIndex, opts BuildOptions, sources []string) Manifest {
	counts := make(map[string]int, len(Kinds))
	for kind, n := range idx.CountByKind() {
		counts[string(kind)] = n
	}
	return Manifest{
		SchemaVersion:  IndexSchemaVersion,
		BuiltAt:        time.Now().UTC().Truncate(time.Second),
		MaxDescription: opts.MaxDescription,
		Records:        len(idx.List),
		Counts:         counts,
		Sources:        sources,
	}
}

// ManifestPath returns where the manifest of an artifact lives
func ManifestPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, ".json") + ".manifest.toml"
}

// WriteManifest stores m as TOML
func WriteManifest(path string, m Manifest) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest and checks its schema version
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Check(); err != nil {
		return m, err
	}
	return m, nil
}

// Check rejects manifests from another schema version
func (m Manifest) Check() error {
	if m.SchemaVersion != IndexSchemaVersion {
		return fmt.Errorf("%w (have: v%d, want: v%d)", ErrSchemaVersion, m.SchemaVersion, IndexSchemaVersion)
	}
	return nil
}

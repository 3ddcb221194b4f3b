package tools

import (
	"embed"
	"path"

	"github.com/conky/docsearch/internal/indexing"
)

// The documentation sources are embedded so the server can build an index
// without network access or a checkout of the docs.
//
//go:embed data/doc/*.yaml
var embeddedFS embed.FS

const embeddedDocDir = "data/doc"

// embeddedDataProvider serves files from embeddedFS
type embeddedDataProvider struct {
	fs embed.FS
}

// NewEmbeddedDataProvider returns the production DataProvider
func NewEmbeddedDataProvider() DataProvider {
	return &embeddedDataProvider{fs: embeddedFS}
}

func (p *embeddedDataProvider) ReadFile(name string) ([]byte, error) {
	return p.fs.ReadFile(name)
}

// readBundledSources parses the three sources from provider. A source the
// provider lacks is left empty.
func readBundledSources(provider DataProvider) (indexing.Sources, error) {
	raw := make(map[indexing.Kind][]byte, len(indexing.Kinds))
	for _, kind := range indexing.Kinds {
		data, err := provider.ReadFile(path.Join(embeddedDocDir, indexing.SourceFile(kind)))
		if err != nil {
			continue
		}
		raw[kind] = data
	}
	return indexing.ParseSources(raw)
}

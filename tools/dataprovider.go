package tools

// DataProvider gives access to the documentation sources bundled with the
// binary. Tests swap in an in-memory implementation.
type DataProvider interface {
	// ReadFile reads the named file, relative to the data root
	// (e.g. "data/doc/variables.yaml").
	ReadFile(name string) ([]byte, error)
}

// defaultDataProvider is used by package-level functions
var defaultDataProvider DataProvider = NewEmbeddedDataProvider()

// SetDefaultDataProvider replaces the bundled sources, mainly for tests
func SetDefaultDataProvider(provider DataProvider) {
	defaultDataProvider = provider
}

// ResetDefaultDataProvider restores the embedded sources
func ResetDefaultDataProvider() {
	defaultDataProvider = NewEmbeddedDataProvider()
}

package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/timmy/marketplace/internal/domain"
)

// Registry picks a Reader by file extension.
type Registry struct {
	readers  map[string]Reader
	fallback Reader
}

// NewRegistry creates a registry; fallback handles names without a known extension.
func NewRegistry(fallback Reader, readers ...Reader) *Registry {
	r := &Registry{readers: make(map[string]Reader), fallback: fallback}
	for _, reader := range append([]Reader{fallback}, readers...) {
		r.readers[reader.Extension()] = reader
	}
	return r
}

// ForFile returns the reader for fileName.
// Returns domain.ErrUnsupportedFormat for a known-but-unsupported extension.
func (r *Registry) ForFile(fileName string) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if reader, ok := r.readers[ext]; ok {
		return reader, nil
	}
	switch ext {
	case "", ".txt":
		return r.fallback, nil
	}
	return nil, domain.WrapError(domain.ErrUnsupportedFormat, "select reader", fmt.Errorf("extension %q", ext))
}

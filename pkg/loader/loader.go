package loader

import (
	"context"

	"github.com/chirality-ai/valley/pkg/common"
)

// DocumentSource points at one serialized Chirality document. The bytes are
// fetched through the associated DocumentLoader, so the same source type
// works for local files and object storage.
type DocumentSource struct {
	ID     string
	Path   string
	Loader DocumentLoader
}

// NewDocumentSource creates a DocumentSource for path. ID defaults to path.
func NewDocumentSource(path string, l DocumentLoader) DocumentSource {
	return DocumentSource{ID: path, Path: path, Loader: l}
}

// GetBytes retrieves the raw document bytes using the source's Loader.
func (s DocumentSource) GetBytes(ctx context.Context) ([]byte, error) {
	return s.Loader.GetDocumentBytes(ctx, s)
}

// Load fetches and decodes every document stored at the source. When repair
// is set, malformed JSON is repaired before decoding.
//
// Example:
//
//	src := loader.NewDocumentSource("docs/matrix_c.json", io.NewIODocumentLoader())
//	docs, err := src.Load(ctx, true)
//	if err != nil {
//		log.Fatal(err)
//	}
func (s DocumentSource) Load(ctx context.Context, repair bool) ([]common.Document, error) {
	b, err := s.GetBytes(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeDocuments(b, repair)
}

// DocumentLoader defines how the bytes of a DocumentSource are retrieved.
// Implementations may load from disk, cloud storage, or other sources.
type DocumentLoader interface {
	GetDocumentBytes(ctx context.Context, src DocumentSource) ([]byte, error)
}

// CacheKey identifies a source in loader caches.
func CacheKey(src DocumentSource) string {
	return src.ID + ":" + src.Path
}

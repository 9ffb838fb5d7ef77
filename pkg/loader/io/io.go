package io

import (
	"context"
	"os"
	"sync"

	"github.com/chirality-ai/valley/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// IODocumentLoader loads documents directly from the local filesystem with
// caching.
type IODocumentLoader struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIODocumentLoader creates a new filesystem-based document loader.
func NewIODocumentLoader() *IODocumentLoader {
	return &IODocumentLoader{
		cache: make(map[string][]byte),
	}
}

// GetDocumentBytes reads the file content from the filesystem. Results are
// cached.
func (l *IODocumentLoader) GetDocumentBytes(ctx context.Context, src loader.DocumentSource) ([]byte, error) {
	key := loader.CacheKey(src)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = b
		l.cacheMu.Unlock()

		return b, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Package memory keeps products and archived pages in-memory for development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PageArchive stores listing pages in-memory and returns pseudo URIs.
type PageArchive struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewPageArchive creates a new in-memory page archive.
func NewPageArchive() *PageArchive {
	return &PageArchive{data: make(map[string][]byte)}
}

// PutObject persists the content and returns a URI.
func (a *PageArchive) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[path] = byteData
	return fmt.Sprintf("memory://%s", path), nil
}

// Object returns a copy of the archived content at path.
func (a *PageArchive) Object(path string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Len returns the number of archived objects.
func (a *PageArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}

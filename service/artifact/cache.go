// Package artifact stores prepared artifacts under a cache location that
// workers can read.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/exq/model/artifact"
)

// ErrNotFound is returned when an artifact is not in the cache
var ErrNotFound = errors.New("artifact not found")

// Cache is an afs backed artifact cache
type Cache struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

// Path returns the location of an artifact
func (c *Cache) Path(id artifact.ID) string {
	return url.Join(c.baseURL, id.FileName())
}

// Store writes prepared artifact code
func (c *Cache) Store(ctx context.Context, id artifact.ID, code []byte) (artifact.PathID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	location := c.Path(id)
	if err := c.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(code)); err != nil {
		return artifact.PathID{}, fmt.Errorf("failed to store artifact %v: %w", id, err)
	}
	return artifact.PathID{ID: id, Path: location}, nil
}

// Resolve returns the location of a stored artifact
func (c *Cache) Resolve(ctx context.Context, id artifact.ID) (artifact.PathID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	location := c.Path(id)
	exists, err := c.fs.Exists(ctx, location)
	if err != nil {
		return artifact.PathID{}, fmt.Errorf("failed to check artifact %v: %w", id, err)
	}
	if !exists {
		return artifact.PathID{}, ErrNotFound
	}
	return artifact.PathID{ID: id, Path: location}, nil
}

// Load reads artifact code
func (c *Cache) Load(ctx context.Context, id artifact.ID) ([]byte, error) {
	pathID, err := c.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fs.DownloadWithURL(ctx, pathID.Path)
}

// Remove deletes an artifact; removing a missing artifact is not an error
func (c *Cache) Remove(ctx context.Context, id artifact.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	location := c.Path(id)
	exists, err := c.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check artifact %v: %w", id, err)
	}
	if !exists {
		return nil
	}
	if err := c.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to remove artifact %v: %w", id, err)
	}
	return nil
}

// List returns ids of all cached artifacts
func (c *Cache) List(ctx context.Context) ([]artifact.ID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	objects, err := c.fs.List(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	var ret []artifact.ID
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), artifact.Extension) {
			continue
		}
		id, err := artifact.ParseFileName(object.Name())
		if err != nil {
			continue
		}
		ret = append(ret, id)
	}
	return ret, nil
}

// New creates an artifact cache rooted at baseURL, creating it when missing
func New(ctx context.Context, baseURL string, fs afs.Service) (*Cache, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("cache location cannot be empty")
	}
	if fs == nil {
		fs = afs.New()
	}
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create cache location: %w", err)
		}
	}
	return &Cache{
		baseURL: url.Normalize(baseURL, file.Scheme),
		fs:      fs,
	}, nil
}

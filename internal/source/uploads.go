package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/logstory/logstory-go/internal/cache"
	"github.com/logstory/logstory-go/internal/storage"
	"github.com/logstory/logstory-go/pkg/logstory"
)

// Uploads serves the caller's uploaded file for a log type. The caller is
// taken from the request context (storage.OwnerFrom).
type Uploads struct {
	store   storage.Store
	decoder Decoder
	cache   *cache.LRU[string, []string]
}

// NewUploads creates an upload line source. Decoded uploads are cached by
// content hash, so identical uploads from different owners share an entry.
func NewUploads(store storage.Store, decoder Decoder, cacheEntries int) *Uploads {
	return &Uploads{
		store:   store,
		decoder: decoder,
		cache:   cache.New[string, []string](cacheEntries),
	}
}

// Lines implements logstory.LineSource.
func (u *Uploads) Lines(ctx context.Context, logType string) ([]string, error) {
	owner := storage.OwnerFrom(ctx)
	meta, err := u.store.Stat(ctx, owner, logType)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, logstory.ErrNoLines
	}
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}

	if lines, ok := u.cache.Get(meta.Hash); ok {
		return lines, nil
	}

	data, _, err := u.store.Get(ctx, owner, logType)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, logstory.ErrNoLines
	}
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	lines, err := u.decoder.Lines(data)
	if err != nil {
		return nil, err
	}
	// keyed on what was read; the upload may have been replaced since Stat
	u.cache.Add(storage.ContentHash(data), lines)
	return lines, nil
}

// Chain tries each source in order and returns the first that has lines.
type Chain []logstory.LineSource

// Lines implements logstory.LineSource.
func (c Chain) Lines(ctx context.Context, logType string) ([]string, error) {
	for _, src := range c {
		lines, err := src.Lines(ctx, logType)
		if errors.Is(err, logstory.ErrNoLines) {
			continue
		}
		return lines, err
	}
	return nil, logstory.ErrNoLines
}

package claim

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/leaksopan/SnapMe-sub000/internal/events"
)

// URLCache keeps presigned URLs for part of their lifetime so gallery
// reloads do not re-sign every photo.
type URLCache struct {
	lru *expirable.LRU[string, string]
}

// NewURLCache caches up to size URLs. Entries live for half of urlExpiry so a
// cached URL always has at least that much validity left.
func NewURLCache(size int, urlExpiry time.Duration) *URLCache {
	if size <= 0 {
		size = 1024
	}
	return &URLCache{lru: expirable.NewLRU[string, string](size, nil, urlExpiry/2)}
}

func (c *URLCache) Get(path string) (string, bool) {
	return c.lru.Get(path)
}

func (c *URLCache) Add(path, url string) {
	c.lru.Add(path, url)
}

func (c *URLCache) Remove(paths ...string) {
	for _, p := range paths {
		if p != "" {
			c.lru.Remove(p)
		}
	}
}

func (c *URLCache) Len() int {
	return c.lru.Len()
}

// HandlePhotoDeleted drops the URLs of a deleted photo. It is meant to be
// subscribed to events.PhotoDeleted.
func (c *URLCache) HandlePhotoDeleted(_ context.Context, e events.Event) error {
	c.Remove(e.FilePath, e.ThumbnailPath)
	return nil
}

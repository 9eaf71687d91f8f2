package recommend

import (
	"context"
	"strings"
	"time"

	"github.com/suPer8Hu/moodtune/internal/cache"
)

// TrackResolver finds the catalog id of a track. An empty id with a nil
// error means "not found".
type TrackResolver interface {
	ResolveTrackID(ctx context.Context, artist, name string) (string, error)
}

type NoopResolver struct{}

func (NoopResolver) ResolveTrackID(context.Context, string, string) (string, error) {
	return "", nil
}

// CachedResolver memoizes another resolver, including misses.
type CachedResolver struct {
	next  TrackResolver
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedResolver(next TrackResolver, c cache.Cache, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedResolver{next: next, cache: c, ttl: ttl}
}

type cachedTrack struct {
	ID string `json:"id"`
}

func trackKey(artist, name string) string {
	return "track:" + strings.ToLower(strings.TrimSpace(artist)) + "\x1f" + strings.ToLower(strings.TrimSpace(name))
}

func (r *CachedResolver) ResolveTrackID(ctx context.Context, artist, name string) (string, error) {
	key := trackKey(artist, name)

	var hit cachedTrack
	if ok, err := r.cache.GetJSON(ctx, key, &hit); err == nil && ok {
		return hit.ID, nil
	}

	id, err := r.next.ResolveTrackID(ctx, artist, name)
	if err != nil {
		return "", err
	}
	_ = r.cache.SetJSON(ctx, key, cachedTrack{ID: id}, r.ttl)
	return id, nil
}

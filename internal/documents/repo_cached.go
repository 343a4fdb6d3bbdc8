package documents

import (
	"context"
	"errors"
	"time"

	"paper-backend/internal/shared/cache"
	"paper-backend/internal/shared/telemetry"
)

// DocumentCache is the subset of *cache.Cache used by CachedRepo.
type DocumentCache interface {
	Key(parts ...string) string
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedRepo serves Get from a read-through cache. Writes go to the
// underlying repo first and then drop the cached entry.
type CachedRepo struct {
	Repo  Repo
	Cache DocumentCache
	TTL   time.Duration
}

func (r *CachedRepo) key(id string) string {
	return r.Cache.Key("document", id)
}

func (r *CachedRepo) Create(ctx context.Context, doc Document) error {
	return r.Repo.Create(ctx, doc)
}

func (r *CachedRepo) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := r.Cache.Get(ctx, r.key(id), &doc)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		telemetry.Warn("cache.get_failed", map[string]any{"document_id": id, "error": err.Error()})
	}

	doc, err = r.Repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if err := r.Cache.Set(ctx, r.key(id), doc, r.TTL); err != nil {
		telemetry.Warn("cache.set_failed", map[string]any{"document_id": id, "error": err.Error()})
	}
	return doc, nil
}

func (r *CachedRepo) Update(ctx context.Context, id string, upd Update) (Document, error) {
	doc, err := r.Repo.Update(ctx, id, upd)
	r.invalidate(ctx, id)
	return doc, err
}

func (r *CachedRepo) Touch(ctx context.Context, id string, at time.Time) error {
	err := r.Repo.Touch(ctx, id, at)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedRepo) List(ctx context.Context, userID string, q ListQuery) ([]Document, int, error) {
	return r.Repo.List(ctx, userID, q)
}

func (r *CachedRepo) Search(ctx context.Context, userID, query string, limit int) ([]Document, error) {
	return r.Repo.Search(ctx, userID, query, limit)
}

func (r *CachedRepo) Similar(ctx context.Context, userID, excludeID string, embedding []float32, topK int, minSimilarity float64) ([]Match, error) {
	return r.Repo.Similar(ctx, userID, excludeID, embedding, topK, minSimilarity)
}

func (r *CachedRepo) invalidate(ctx context.Context, id string) {
	if err := r.Cache.Delete(ctx, r.key(id)); err != nil {
		telemetry.Warn("cache.delete_failed", map[string]any{"document_id": id, "error": err.Error()})
	}
}

package documents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document // id -> document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return fmt.Errorf("%w: document %s already exists", ErrInvalidInput, doc.ID)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	r.data[doc.ID] = cloneDocument(doc)
	return nil
}

// Get returns a document by ID.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Update applies upd and returns the stored result.
func (r *MemoryRepo) Update(ctx context.Context, id string, upd Update) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if upd.ExpectVersion != nil && *upd.ExpectVersion != doc.Version {
		return Document{}, fmt.Errorf("%w: document %s at version %d, expected %d", ErrVersionConflict, id, doc.Version, *upd.ExpectVersion)
	}
	if upd.Empty() {
		return cloneDocument(doc), nil
	}
	upd.applyTo(&doc)
	r.data[id] = doc
	return cloneDocument(doc), nil
}

// Touch records a read without bumping the version.
func (r *MemoryRepo) Touch(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	doc.LastAccessed = &at
	r.data[id] = doc
	return nil
}

// List returns a user's live documents newest first with the total count.
func (r *MemoryRepo) List(ctx context.Context, userID string, q ListQuery) ([]Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	q = q.normalized()

	docs := r.collect(userID, func(d Document) bool {
		return q.Status == "" || d.Status == q.Status
	})
	total := len(docs)
	start := q.offset()
	if start >= total {
		return []Document{}, total, nil
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return docs[start:end], total, nil
}

// Search matches query case-insensitively against title, abstract,
// keywords and content.
func (r *MemoryRepo) Search(ctx context.Context, userID, query string, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []Document{}, nil
	}
	docs := r.collect(userID, func(d Document) bool {
		return strings.Contains(searchText(d), needle)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Similar ranks a user's embedded documents by cosine similarity.
func (r *MemoryRepo) Similar(ctx context.Context, userID, excludeID string, embedding []float32, topK int, minSimilarity float64) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs := r.collect(userID, func(d Document) bool {
		return d.ID != excludeID && len(d.Embedding) > 0
	})
	matches := make([]Match, 0, len(docs))
	for _, d := range docs {
		sim, ok := cosineSimilarity(embedding, d.Embedding)
		if !ok || sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{Document: d, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// collect copies a user's non-deleted documents that satisfy keep, newest first.
func (r *MemoryRepo) collect(userID string, keep func(Document) bool) []Document {
	r.mu.RLock()
	out := make([]Document, 0)
	for _, d := range r.data {
		if d.UserID != userID || d.Status == StatusDeleted {
			continue
		}
		if keep != nil && !keep(d) {
			continue
		}
		out = append(out, cloneDocument(d))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadDate.After(out[j].UploadDate)
	})
	return out
}

func searchText(d Document) string {
	var b strings.Builder
	b.WriteString(d.Metadata.Title)
	b.WriteByte(' ')
	b.WriteString(d.Metadata.Abstract)
	b.WriteByte(' ')
	b.WriteString(strings.Join(d.Metadata.Keywords, " "))
	b.WriteByte(' ')
	b.WriteString(d.OriginalFilename)
	if d.Content != nil {
		b.WriteByte(' ')
		b.WriteString(*d.Content)
	}
	return strings.ToLower(b.String())
}

var _ Repo = (*MemoryRepo)(nil)

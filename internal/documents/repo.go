package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for documents. Get returns documents
// in every status, including deleted; ownership is enforced by Service.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	Update(ctx context.Context, id string, upd Update) (Document, error)
	Touch(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, userID string, q ListQuery) ([]Document, int, error)
	Search(ctx context.Context, userID, query string, limit int) ([]Document, error)
	Similar(ctx context.Context, userID, excludeID string, embedding []float32, topK int, minSimilarity float64) ([]Match, error)
}

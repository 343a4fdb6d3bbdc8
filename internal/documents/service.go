package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"paper-backend/internal/contentaddr"
	"paper-backend/internal/extract"
	"paper-backend/internal/jobs"
	"paper-backend/internal/llm"
	"paper-backend/internal/paper"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/events"
	"paper-backend/internal/shared/metrics"
	"paper-backend/internal/shared/scan"
	"paper-backend/internal/shared/storage/object"
	"paper-backend/internal/shared/telemetry"
)

const (
	maxConflictRetries = 3
	wordsPerMinute     = 250
	maxKeyConcepts     = 10
	maxTags            = 20
	maxTagLen          = 50
	maxNotesLen        = 10000
	defaultSearchLimit = 20
	defaultSimilarTopK = 5
	maxSimilarTopK     = 20

	// defaultProcessingLease applies when no extraction timeout is configured.
	defaultProcessingLease = 10 * time.Minute
)

// Service runs the ingestion pipeline and the document read operations.
// Jobs may be assigned after construction when the job runner needs the
// service as its handler.
type Service struct {
	Repo      Repo
	Store     object.ObjectStore
	Extractor *extract.Extractor
	Jobs      jobs.Submitter
	Events    events.Publisher
	Scanner   scan.Scanner
	Enricher  llm.Enricher
	Settings  config.Ingestion
	Now       func() time.Time

	running inflight
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// StartIngestion validates and stores an upload, records it as uploading and
// schedules extraction. Validation and scan errors return before any write.
func (s *Service) StartIngestion(ctx context.Context, userID, filename string, data []byte) (Document, error) {
	if strings.TrimSpace(userID) == "" {
		return Document{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := s.now()
	addr, err := contentaddr.ValidateAndHash(data, filename, s.Settings.MaxUploadBytes, s.Settings.AllowedExtensions, now)
	if err != nil {
		metrics.IncIngestionRejected(rejectReason(err))
		return Document{}, err
	}
	if s.Scanner != nil {
		if err := s.Scanner.Scan(ctx, bytes.NewReader(data)); err != nil {
			if errors.Is(err, scan.ErrInfected) {
				metrics.IncIngestionRejected("infected")
				telemetry.Warn("ingestion.rejected", map[string]any{
					"request_id": requestIDFromContext(ctx),
					"user_id":    userID,
					"reason":     "infected",
					"error":      err.Error(),
				})
				return Document{}, err
			}
			return Document{}, fmt.Errorf("scan upload: %w", err)
		}
	}

	key := object.UserKey(userID, addr.StorageName)
	if _, err := s.Store.SaveWithKey(ctx, key, addr.FileType.MimeType(), bytes.NewReader(data)); err != nil {
		return Document{}, fmt.Errorf("store upload: %w", err)
	}

	doc := Document{
		ID:               uuid.NewString(),
		UserID:           userID,
		FileName:         addr.StorageName,
		OriginalFilename: filepath.Base(strings.TrimSpace(filename)),
		FileType:         addr.FileType,
		MimeType:         addr.FileType.MimeType(),
		FileSize:         int64(len(data)),
		ContentHash:      addr.ContentHash,
		FilePath:         key,
		StorageProvider:  s.Store.Provider(),
		Status:           StatusUploading,
		UploadDate:       now,
		Tags:             []string{},
		Version:          1,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		if delErr := s.Store.Delete(backgroundWithRequestID(ctx), key); delErr != nil {
			telemetry.Warn("ingestion.cleanup_failed", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"storage_key": key,
				"error":       delErr.Error(),
			})
		}
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	metrics.IncIngestionStarted()

	if err := s.schedule(ctx, doc.ID); err != nil {
		failed, markErr := s.markScheduleFailed(backgroundWithRequestID(ctx), doc, err)
		if markErr == nil {
			doc = failed
		}
		return doc, fmt.Errorf("%w: %v", ErrScheduleFailed, err)
	}

	telemetry.Info("ingestion.started", map[string]any{
		"request_id":   requestIDFromContext(ctx),
		"user_id":      userID,
		"document_id":  doc.ID,
		"file_type":    string(doc.FileType),
		"file_size":    doc.FileSize,
		"content_hash": doc.ContentHash,
	})
	s.publish(ctx, events.SubjectUploaded, doc)
	return doc, nil
}

// Upload is one file of a batch.
type Upload struct {
	Filename string
	Data     []byte
}

// BatchResult reports the outcome for one file of a batch.
type BatchResult struct {
	Filename string
	Document *Document
	Err      error
}

// BatchUpload ingests up to Settings.BatchLimit files. Per-file failures are
// reported in the results and do not stop the remaining files.
func (s *Service) BatchUpload(ctx context.Context, userID string, files []Upload) ([]BatchResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidInput)
	}
	limit := s.Settings.BatchLimit
	if limit <= 0 {
		limit = 5
	}
	if len(files) > limit {
		return nil, fmt.Errorf("%w: %d files, limit %d", ErrBatchTooLarge, len(files), limit)
	}
	results := make([]BatchResult, 0, len(files))
	for _, f := range files {
		res := BatchResult{Filename: f.Filename}
		doc, err := s.StartIngestion(ctx, userID, f.Filename, f.Data)
		if err != nil {
			res.Err = err
		} else {
			res.Document = &doc
		}
		results = append(results, res)
	}
	return results, nil
}

// Handle runs a scheduled unit. It satisfies jobs.Handler.
func (s *Service) Handle(ctx context.Context, u jobs.Unit) error {
	if u.Kind != jobs.KindExtract {
		return jobs.Permanent(fmt.Errorf("%w: %s", jobs.ErrUnknownKind, u.Kind))
	}
	return s.RunExtraction(WithRequestID(ctx, u.RequestID), u.DocumentID)
}

// RunExtraction moves a document through processing to ready or failed.
// Errors that must not be retried are wrapped with jobs.Permanent.
func (s *Service) RunExtraction(ctx context.Context, documentID string) error {
	release, ok := s.running.acquire(documentID)
	if !ok {
		return jobs.Permanent(ErrExtractionInProgress)
	}
	defer release()

	// Postgres keeps microseconds; the lease is compared after a round trip.
	startedAt := s.now().Truncate(time.Microsecond)
	var prev Status
	doc, err := s.updateChecked(ctx, documentID, func(cur Document) (Update, error) {
		switch cur.Status {
		case StatusDeleted:
			return Update{}, ErrDeleted
		case StatusProcessing:
			if !s.leaseExpired(cur) {
				return Update{}, ErrExtractionInProgress
			}
		default:
			if !cur.Status.CanTransition(StatusProcessing) {
				return Update{}, fmt.Errorf("%w: %s->%s", ErrInvalidTransition, cur.Status, StatusProcessing)
			}
		}
		prev = cur.Status
		return Update{Status: ptr(StatusProcessing), ProcessingStartedAt: &startedAt, ClearError: true}, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDeleted) ||
			errors.Is(err, ErrExtractionInProgress) || errors.Is(err, ErrInvalidTransition) {
			return jobs.Permanent(err)
		}
		return fmt.Errorf("set processing: %w", err)
	}
	if prev == StatusProcessing {
		s.logTransition(ctx, doc, "processing->processing", map[string]any{"lease_takeover": true})
	} else {
		s.logTransition(ctx, doc, string(prev)+"->processing", nil)
	}

	extractCtx := ctx
	if s.Settings.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, s.Settings.ExtractionTimeout)
		defer cancel()
	}
	text, extracted, err := s.extractor().ExtractObject(extractCtx, s.Store, doc.FilePath, doc.FileType)
	if err != nil {
		return s.fail(ctx, doc, startedAt, err)
	}

	ready, err := s.updateChecked(ctx, documentID, func(cur Document) (Update, error) {
		if cur.Status == StatusDeleted {
			return Update{}, ErrDeleted
		}
		if cur.Status != StatusProcessing {
			return Update{}, fmt.Errorf("%w: %s->%s", ErrInvalidTransition, cur.Status, StatusReady)
		}
		if !holdsLease(cur, startedAt) {
			return Update{}, ErrLeaseLost
		}
		meta := cloneMetadata(cur.Metadata)
		meta.MergeExtraction(extracted)
		finished := s.now()
		return Update{
			Status:                ptr(StatusReady),
			Content:               ptr(text),
			Metadata:              &meta,
			ProcessedDate:         &finished,
			ProcessingTimeSeconds: ptr(finished.Sub(startedAt).Seconds()),
			ClearError:            true,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrDeleted) || errors.Is(err, ErrLeaseLost) {
			return jobs.Permanent(err)
		}
		return s.fail(ctx, doc, startedAt, fmt.Errorf("storage: save result: %w", err))
	}

	elapsedMs := float64(s.now().Sub(startedAt).Microseconds()) / 1000.0
	metrics.IncExtractionCompleted(string(ready.FileType))
	metrics.ObserveExtractionDurationMs(elapsedMs)
	s.logTransition(ctx, ready, "processing->ready", map[string]any{
		"duration_ms":   elapsedMs,
		"total_pages":   ready.Metadata.TotalPages,
		"total_words":   ready.Metadata.TotalWords,
		"section_count": len(ready.Metadata.Sections),
	})
	s.publish(ctx, events.SubjectReady, ready)

	s.enrich(ctx, ready, text)
	return nil
}

// leaseExpired reports whether a processing document's lease is older than
// the extraction timeout. Rows without a lease count as expired.
func (s *Service) leaseExpired(doc Document) bool {
	if doc.Status != StatusProcessing {
		return false
	}
	if doc.ProcessingStartedAt == nil {
		return true
	}
	lease := s.Settings.ExtractionTimeout
	if lease <= 0 {
		lease = defaultProcessingLease
	}
	return s.now().Sub(*doc.ProcessingStartedAt) > lease
}

func holdsLease(doc Document, startedAt time.Time) bool {
	return doc.ProcessingStartedAt != nil && doc.ProcessingStartedAt.Equal(startedAt)
}

func (s *Service) extractor() *extract.Extractor {
	if s.Extractor != nil {
		return s.Extractor
	}
	return extract.New()
}

// fail records err on the document and returns it as a permanent job error.
func (s *Service) fail(ctx context.Context, doc Document, startedAt time.Time, cause error) error {
	class := classifyFailure(cause)
	msg := sanitizeError(cause)
	bg := backgroundWithRequestID(ctx)

	failed, err := s.updateChecked(bg, doc.ID, func(cur Document) (Update, error) {
		if cur.Status == StatusDeleted {
			return Update{}, ErrDeleted
		}
		if cur.Status == StatusProcessing && !holdsLease(cur, startedAt) {
			return Update{}, ErrLeaseLost
		}
		return Update{
			Status:                ptr(StatusFailed),
			ErrorMessage:          ptr(msg),
			ClearContent:          true,
			ProcessingTimeSeconds: ptr(s.now().Sub(startedAt).Seconds()),
		}, nil
	})
	if err != nil {
		telemetry.Error("extraction.fail_update_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"error":       err.Error(),
			"cause":       msg,
		})
		if errors.Is(err, ErrDeleted) || errors.Is(err, ErrLeaseLost) {
			return jobs.Permanent(err)
		}
		failed = doc
		failed.Status = StatusFailed
	} else {
		s.publish(bg, events.SubjectFailed, failed)
	}

	metrics.IncExtractionFailed(class)
	s.logTransition(ctx, failed, "processing->failed", map[string]any{
		"failure_class": class,
		"error":         msg,
	})
	return jobs.Permanent(fmt.Errorf("extraction failed: %w", cause))
}

// enrich fills metadata gaps and attaches an embedding. Failures are logged only.
func (s *Service) enrich(ctx context.Context, doc Document, text string) {
	if s.Enricher == nil || strings.TrimSpace(text) == "" {
		return
	}
	result, err := s.Enricher.Enrich(ctx, text)
	if err != nil {
		metrics.IncEnrichmentFailed()
		telemetry.Warn("enrichment.failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"error":       sanitizeError(err),
		})
	}
	if len(result.Embedding) == 0 && isZeroMetadata(result.Metadata) {
		return
	}

	_, err = s.updateChecked(ctx, doc.ID, func(cur Document) (Update, error) {
		if cur.Status != StatusReady {
			return Update{}, fmt.Errorf("%w: document is %s", ErrInvalidTransition, cur.Status)
		}
		meta := cloneMetadata(cur.Metadata)
		meta.FillFrom(result.Metadata)
		upd := Update{Metadata: &meta}
		if len(result.Embedding) > 0 {
			upd.Embedding = result.Embedding
		}
		return upd, nil
	})
	if err != nil {
		metrics.IncEnrichmentFailed()
		telemetry.Warn("enrichment.save_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"error":       err.Error(),
		})
		return
	}
	telemetry.Info("enrichment.completed", map[string]any{
		"request_id":     requestIDFromContext(ctx),
		"document_id":    doc.ID,
		"embedding_dims": len(result.Embedding),
	})
}

// Get returns an owned document and records the access.
func (s *Service) Get(ctx context.Context, userID, id string) (Document, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return Document{}, err
	}
	s.touch(ctx, &doc)
	return doc, nil
}

// List pages through a user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string, q ListQuery) ([]Document, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if q.Status != "" && (!q.Status.Valid() || q.Status == StatusDeleted) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}
	return s.Repo.List(ctx, userID, q.normalized())
}

// Content returns the extracted text of a ready document.
func (s *Service) Content(ctx context.Context, userID, id string) (Document, string, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return Document{}, "", err
	}
	if doc.Status != StatusReady || doc.Content == nil {
		return doc, "", ErrNotReady
	}
	s.touch(ctx, &doc)
	return doc, *doc.Content, nil
}

// Download opens the original upload. The caller closes the reader.
func (s *Service) Download(ctx context.Context, userID, id string) (Document, io.ReadCloser, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return Document{}, nil, err
	}
	body, err := s.Store.Open(ctx, doc.FilePath)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return Document{}, nil, ErrNotFound
		}
		return Document{}, nil, fmt.Errorf("open upload: %w", err)
	}
	s.touch(ctx, &doc)
	return doc, body, nil
}

// PatchInput carries user-editable annotations. Nil fields are unchanged.
type PatchInput struct {
	Tags       *[]string
	Notes      *string
	IsFavorite *bool
}

var markupPolicy = bluemonday.StrictPolicy()

// plainText strips markup and undoes the sanitizer's entity escaping so
// annotations are stored as the user typed them.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(markupPolicy.Sanitize(s)))
}

// Patch updates annotations. Notes and tags are stripped of markup.
func (s *Service) Patch(ctx context.Context, userID, id string, in PatchInput) (Document, error) {
	if in.Tags == nil && in.Notes == nil && in.IsFavorite == nil {
		return Document{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	var upd Update
	if in.Tags != nil {
		tags, err := cleanTags(*in.Tags)
		if err != nil {
			return Document{}, err
		}
		upd.Tags = &tags
	}
	if in.Notes != nil {
		notes := plainText(*in.Notes)
		if len([]rune(notes)) > maxNotesLen {
			return Document{}, fmt.Errorf("%w: notes exceed %d characters", ErrInvalidInput, maxNotesLen)
		}
		upd.Notes = &notes
	}
	upd.IsFavorite = in.IsFavorite

	if _, err := s.owned(ctx, userID, id); err != nil {
		return Document{}, err
	}
	return s.updateChecked(ctx, id, func(cur Document) (Update, error) {
		if cur.UserID != userID || cur.Status == StatusDeleted {
			return Update{}, ErrNotFound
		}
		return upd, nil
	})
}

func cleanTags(in []string) ([]string, error) {
	if len(in) > maxTags {
		return nil, fmt.Errorf("%w: at most %d tags", ErrInvalidInput, maxTags)
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		tag := plainText(raw)
		if tag == "" {
			continue
		}
		if len([]rune(tag)) > maxTagLen {
			return nil, fmt.Errorf("%w: tag %q exceeds %d characters", ErrInvalidInput, tag, maxTagLen)
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

// Reprocess schedules a fresh extraction of an uploading, ready or failed
// document, or of a processing one whose lease expired. The status changes
// when the job starts.
func (s *Service) Reprocess(ctx context.Context, userID, id string) (Document, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusProcessing && (s.running.held(doc.ID) || !s.leaseExpired(doc)) {
		return doc, ErrExtractionInProgress
	}
	if err := s.schedule(ctx, doc.ID); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrScheduleFailed, err)
	}
	telemetry.Info("document.reprocess_scheduled", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     userID,
		"document_id": doc.ID,
		"status":      string(doc.Status),
	})
	return doc, nil
}

// Delete soft-deletes a document. Deleted documents read as not found.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	var prev Status
	doc, err := s.updateChecked(ctx, id, func(cur Document) (Update, error) {
		if cur.UserID != userID || cur.Status == StatusDeleted {
			return Update{}, ErrNotFound
		}
		prev = cur.Status
		return Update{Status: ptr(StatusDeleted)}, nil
	})
	if err != nil {
		return err
	}
	s.logTransition(ctx, doc, string(prev)+"->deleted", nil)
	s.publish(ctx, events.SubjectDeleted, doc)
	return nil
}

// Search matches a query against titles, abstracts and content.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.Repo.Search(ctx, userID, query, limit)
}

// Similar ranks the user's other documents by embedding similarity.
func (s *Service) Similar(ctx context.Context, userID, id string, topK int, minSimilarity float64) ([]Match, error) {
	if topK == 0 {
		topK = defaultSimilarTopK
	}
	if topK < 1 || topK > maxSimilarTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidInput, maxSimilarTopK)
	}
	if math.IsNaN(minSimilarity) || minSimilarity < 0 || minSimilarity > 1 {
		return nil, fmt.Errorf("%w: min_similarity must be between 0 and 1", ErrInvalidInput)
	}
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if len(doc.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return s.Repo.Similar(ctx, userID, doc.ID, doc.Embedding, topK, minSimilarity)
}

// Analytics summarises a ready document.
func (s *Service) Analytics(ctx context.Context, userID, id string) (Analytics, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return Analytics{}, err
	}
	if doc.Status != StatusReady {
		return Analytics{}, ErrNotReady
	}
	words := doc.Metadata.TotalWords
	if words == 0 && doc.Content != nil {
		words = len(strings.Fields(*doc.Content))
	}
	concepts := doc.Metadata.Keywords
	if len(concepts) == 0 {
		concepts = doc.Metadata.MainTopics
	}
	if len(concepts) > maxKeyConcepts {
		concepts = concepts[:maxKeyConcepts]
	}
	return Analytics{
		DocumentID:         doc.ID,
		WordCount:          words,
		PageCount:          doc.Metadata.TotalPages,
		SectionCount:       len(doc.Metadata.Sections),
		ReadingTimeMinutes: math.Round(float64(words)/wordsPerMinute*10) / 10,
		KeyConcepts:        append([]string{}, concepts...),
	}, nil
}

// owned loads a live document belonging to userID. Anything else is ErrNotFound.
func (s *Service) owned(ctx context.Context, userID, id string) (Document, error) {
	if strings.TrimSpace(userID) == "" {
		return Document{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrNotFound
	}
	doc, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.UserID != userID || doc.Status == StatusDeleted {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *Service) touch(ctx context.Context, doc *Document) {
	at := s.now()
	if err := s.Repo.Touch(ctx, doc.ID, at); err != nil {
		telemetry.Warn("document.touch_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"error":       err.Error(),
		})
		return
	}
	doc.LastAccessed = &at
}

// updateChecked re-reads the document, builds an update from the current
// state and applies it under a version check, retrying on conflicts.
func (s *Service) updateChecked(ctx context.Context, id string, build func(cur Document) (Update, error)) (Document, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.Repo.Get(ctx, id)
		if err != nil {
			return Document{}, err
		}
		upd, err := build(cur)
		if err != nil {
			return cur, err
		}
		version := cur.Version
		upd.ExpectVersion = &version
		updated, err := s.Repo.Update(ctx, id, upd)
		if errors.Is(err, ErrVersionConflict) && attempt < maxConflictRetries {
			continue
		}
		return updated, err
	}
}

func (s *Service) schedule(ctx context.Context, documentID string) error {
	if s.Jobs == nil {
		return errors.New("no job runner configured")
	}
	return s.Jobs.Submit(ctx, jobs.Unit{
		Kind:       jobs.KindExtract,
		DocumentID: documentID,
		RequestID:  requestIDFromContext(ctx),
	})
}

func (s *Service) markScheduleFailed(ctx context.Context, doc Document, cause error) (Document, error) {
	msg := sanitizeError(fmt.Errorf("schedule extraction: %w", cause))
	failed, err := s.updateChecked(ctx, doc.ID, func(cur Document) (Update, error) {
		if !cur.Status.CanTransition(StatusFailed) {
			return Update{}, fmt.Errorf("%w: %s->%s", ErrInvalidTransition, cur.Status, StatusFailed)
		}
		return Update{Status: ptr(StatusFailed), ErrorMessage: &msg}, nil
	})
	if err != nil {
		telemetry.Error("ingestion.schedule_fail_update_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"error":       err.Error(),
		})
		return doc, err
	}
	telemetry.Error("ingestion.schedule_failed", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"document_id": doc.ID,
		"error":       msg,
	})
	s.publish(ctx, events.SubjectFailed, failed)
	return failed, nil
}

func (s *Service) publish(ctx context.Context, subject string, doc Document) {
	if s.Events == nil {
		return
	}
	evt := events.Event{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		Status:     string(doc.Status),
		FileType:   string(doc.FileType),
		RequestID:  requestIDFromContext(ctx),
	}
	if err := s.Events.Publish(ctx, subject, evt); err != nil {
		telemetry.Warn("events.publish_failed", map[string]any{
			"request_id":  evt.RequestID,
			"document_id": doc.ID,
			"subject":     subject,
			"error":       err.Error(),
		})
	}
}

func (s *Service) logTransition(ctx context.Context, doc Document, transition string, extra map[string]any) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           doc.UserID,
		"document_id":       doc.ID,
		"status":            string(doc.Status),
		"status_transition": transition,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("document.status", fields)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, contentaddr.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, contentaddr.ErrSizeExceeded):
		return "size_exceeded"
	case errors.Is(err, contentaddr.ErrInvalidFileName):
		return "invalid_file_name"
	}
	return "invalid"
}

func isZeroMetadata(m paper.Metadata) bool {
	return m.Title == "" && m.Abstract == "" && m.Language == "" && m.Methodology == "" &&
		len(m.Authors) == 0 && len(m.Keywords) == 0 && len(m.MainTopics) == 0 && len(m.KeyFindings) == 0
}

package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"paper-backend/internal/extract/extracttest"
	"paper-backend/internal/jobs"
	"paper-backend/internal/llm"
	"paper-backend/internal/paper"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/events"
	"paper-backend/internal/shared/scan"
	"paper-backend/internal/shared/storage/object/local"
	"paper-backend/internal/shared/telemetry"
	"paper-backend/internal/shared/util"
)

const sampleTXT = "Title Line\n\nAbstract\nThis is the abstract text repeated to exceed fifty characters for validity.\n\nIntroduction\nBody."

type recordingJobs struct {
	mu    sync.Mutex
	units []jobs.Unit
	err   error
}

func (r *recordingJobs) Submit(ctx context.Context, u jobs.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.units = append(r.units, u)
	return nil
}

type recordingEvents struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingEvents) Publish(ctx context.Context, subject string, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

type stubScanner struct{ err error }

func (s stubScanner) Scan(ctx context.Context, r io.Reader) error {
	_, _ = io.Copy(io.Discard, r)
	return s.err
}

type stubEnricher struct {
	result llm.Enrichment
	err    error
}

func (s stubEnricher) Enrich(ctx context.Context, text string) (llm.Enrichment, error) {
	return s.result, s.err
}

type fixture struct {
	svc    *Service
	repo   *MemoryRepo
	jobs   *recordingJobs
	events *recordingEvents
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	telemetry.SetOutput(io.Discard)
	t.Cleanup(func() { telemetry.SetOutput(nil) })

	dir := t.TempDir()
	f := &fixture{
		repo:   NewMemoryRepo(),
		jobs:   &recordingJobs{},
		events: &recordingEvents{},
		dir:    dir,
	}
	f.svc = &Service{
		Repo:   f.repo,
		Store:  local.New(dir),
		Jobs:   f.jobs,
		Events: f.events,
		Settings: config.Ingestion{
			AllowedExtensions: []string{".pdf", ".docx", ".txt"},
			MaxUploadBytes:    1 << 20,
			ExtractionTimeout: 10 * time.Second,
			BatchLimit:        5,
		},
	}
	return f
}

func (f *fixture) ingest(t *testing.T, userID, name string, data []byte) Document {
	t.Helper()
	doc, err := f.svc.StartIngestion(context.Background(), userID, name, data)
	if err != nil {
		t.Fatalf("start ingestion %s: %v", name, err)
	}
	return doc
}

func (f *fixture) stored(t *testing.T, id string) Document {
	t.Helper()
	doc, err := f.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return doc
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return n
}

func TestStartIngestionStoresAndSchedules(t *testing.T) {
	f := newFixture(t)
	data := []byte(sampleTXT)

	doc := f.ingest(t, "user-1", "paper.txt", data)

	if doc.Status != StatusUploading {
		t.Fatalf("expected uploading, got %s", doc.Status)
	}
	if doc.FileType != paper.FileTypeTXT || doc.FileSize != int64(len(data)) {
		t.Fatalf("unexpected type/size: %s %d", doc.FileType, doc.FileSize)
	}
	if doc.ContentHash != util.HashBytes(data) {
		t.Fatalf("content hash mismatch")
	}
	if !strings.HasPrefix(doc.FilePath, util.HashUserKey("user-1")+"/") {
		t.Fatalf("expected user-scoped path, got %s", doc.FilePath)
	}
	if doc.OriginalFilename != "paper.txt" || doc.StorageProvider != "local" {
		t.Fatalf("unexpected names: %+v", doc)
	}
	if countFiles(t, f.dir) != 1 {
		t.Fatalf("expected one stored file")
	}
	if len(f.jobs.units) != 1 || f.jobs.units[0].Kind != jobs.KindExtract || f.jobs.units[0].DocumentID != doc.ID {
		t.Fatalf("unexpected units: %+v", f.jobs.units)
	}
	if len(f.events.subjects) != 1 || f.events.subjects[0] != events.SubjectUploaded {
		t.Fatalf("unexpected events: %v", f.events.subjects)
	}
}

func TestStartIngestionRejectsBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)
	f.svc.Settings.MaxUploadBytes = 10

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "malware.exe", data: []byte("tiny"), want: ErrUnsupportedType},
		{name: "noext", data: []byte("tiny"), want: ErrUnsupportedType},
		{name: "big.txt", data: []byte("eleven byte"), want: ErrSizeExceeded},
	}
	for _, tt := range tests {
		_, err := f.svc.StartIngestion(context.Background(), "user-1", tt.name, tt.data)
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
	if n := countFiles(t, f.dir); n != 0 {
		t.Fatalf("expected no stored files, got %d", n)
	}
	if len(f.jobs.units) != 0 {
		t.Fatalf("expected no scheduled units")
	}
	docs, total, err := f.repo.List(context.Background(), "user-1", ListQuery{})
	if err != nil || total != 0 || len(docs) != 0 {
		t.Fatalf("expected no documents, got %d (%v)", total, err)
	}
}

func TestStartIngestionSizeBoundary(t *testing.T) {
	f := newFixture(t)
	f.svc.Settings.MaxUploadBytes = 10

	if _, err := f.svc.StartIngestion(context.Background(), "user-1", "exact.txt", []byte("0123456789")); err != nil {
		t.Fatalf("expected exact size to succeed, got %v", err)
	}
	if _, err := f.svc.StartIngestion(context.Background(), "user-1", "over.txt", []byte("0123456789A")); !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("expected ErrSizeExceeded, got %v", err)
	}
}

func TestStartIngestionScheduleFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.jobs.err = errors.New("queue unavailable")

	doc, err := f.svc.StartIngestion(context.Background(), "user-1", "paper.txt", []byte(sampleTXT))
	if !errors.Is(err, ErrScheduleFailed) {
		t.Fatalf("expected ErrScheduleFailed, got %v", err)
	}
	stored := f.stored(t, doc.ID)
	if stored.Status != StatusFailed || stored.ErrorMessage == nil || *stored.ErrorMessage == "" {
		t.Fatalf("expected failed with message, got %+v", stored)
	}
}

func TestStartIngestionInfectedUpload(t *testing.T) {
	f := newFixture(t)
	f.svc.Scanner = stubScanner{err: fmt.Errorf("%w: Eicar-Test-Signature", scan.ErrInfected)}

	_, err := f.svc.StartIngestion(context.Background(), "user-1", "paper.txt", []byte(sampleTXT))
	if !errors.Is(err, ErrInfected) {
		t.Fatalf("expected ErrInfected, got %v", err)
	}
	if countFiles(t, f.dir) != 0 {
		t.Fatalf("expected no stored files")
	}
}

func TestRunExtractionTXTReady(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("run extraction: %v", err)
	}
	got := f.stored(t, doc.ID)
	if got.Status != StatusReady {
		t.Fatalf("expected ready, got %s", got.Status)
	}
	if got.Metadata.Title != "Title Line" {
		t.Fatalf("expected title, got %q", got.Metadata.Title)
	}
	if !strings.Contains(got.Metadata.Abstract, "This is the abstract text") {
		t.Fatalf("expected abstract, got %q", got.Metadata.Abstract)
	}
	if got.Content == nil || !strings.Contains(*got.Content, "Body.") {
		t.Fatalf("expected content, got %v", got.Content)
	}
	if got.ProcessedDate == nil || got.ProcessingTimeSeconds == nil || got.ErrorMessage != nil {
		t.Fatalf("unexpected completion fields: %+v", got)
	}
	if last := f.events.subjects[len(f.events.subjects)-1]; last != events.SubjectReady {
		t.Fatalf("expected ready event, got %s", last)
	}
}

func TestRunExtractionPDFRecordsPages(t *testing.T) {
	f := newFixture(t)
	pdf := extracttest.TextPDF([][]string{
		{"Graph Neural Networks at Scale", "Abstract", "We study scaling properties of message passing networks in practice."},
		{"1. Introduction", "Large graphs need careful batching."},
		{"2. Results", "Accuracy improves with depth."},
	})
	doc := f.ingest(t, "user-1", "paper.pdf", pdf)

	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("run extraction: %v", err)
	}
	got := f.stored(t, doc.ID)
	if got.Status != StatusReady || got.Metadata.TotalPages != 3 {
		t.Fatalf("expected ready with 3 pages, got %s pages=%d", got.Status, got.Metadata.TotalPages)
	}
	if got.Metadata.TotalWords == 0 || len(got.Metadata.Sections) == 0 {
		t.Fatalf("expected words and sections, got %+v", got.Metadata)
	}
}

func TestRunExtractionIsRepeatable(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := f.stored(t, doc.ID)
	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := f.stored(t, doc.ID)

	if second.Status != StatusReady {
		t.Fatalf("expected ready, got %s", second.Status)
	}
	if first.Metadata.Title != second.Metadata.Title || first.Metadata.TotalWords != second.Metadata.TotalWords {
		t.Fatalf("metadata changed between runs: %+v vs %+v", first.Metadata, second.Metadata)
	}
	if second.Version <= first.Version {
		t.Fatalf("expected version to advance, got %d then %d", first.Version, second.Version)
	}
}

func TestRunExtractionCorruptPDFFails(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.pdf", []byte("this is not a pdf at all"))

	err := f.svc.RunExtraction(context.Background(), doc.ID)
	if err == nil || !jobs.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	got := f.stored(t, doc.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatalf("expected error message")
	}
	if got.Content != nil || got.ProcessedDate != nil {
		t.Fatalf("expected no content and no processed date, got %+v", got)
	}
	if resp := toResponse(got); resp.Error != "processing failed" {
		t.Fatalf("expected generic failure message, got %q", resp.Error)
	}
}

func TestRunExtractionMissingFileFails(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))
	if err := f.svc.Store.Delete(context.Background(), doc.FilePath); err != nil {
		t.Fatalf("delete object: %v", err)
	}
	if err := f.svc.RunExtraction(context.Background(), doc.ID); !jobs.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := f.stored(t, doc.ID); got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestRunExtractionOnDeletedDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))
	if err := f.svc.Delete(context.Background(), "user-1", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	err := f.svc.RunExtraction(context.Background(), doc.ID)
	if !errors.Is(err, ErrDeleted) || !jobs.IsPermanent(err) {
		t.Fatalf("expected permanent ErrDeleted, got %v", err)
	}
	if got := f.stored(t, doc.ID); got.Status != StatusDeleted {
		t.Fatalf("expected deleted to stay terminal, got %s", got.Status)
	}
}

func TestRunExtractionRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	release, ok := f.svc.running.acquire(doc.ID)
	if !ok {
		t.Fatal("expected to acquire guard")
	}
	err := f.svc.RunExtraction(context.Background(), doc.ID)
	release()
	if !errors.Is(err, ErrExtractionInProgress) {
		t.Fatalf("expected ErrExtractionInProgress, got %v", err)
	}

	processing := StatusProcessing
	leased := time.Now()
	if _, err := f.repo.Update(context.Background(), doc.ID, Update{Status: &processing, ProcessingStartedAt: &leased}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.svc.RunExtraction(context.Background(), doc.ID); !errors.Is(err, ErrExtractionInProgress) {
		t.Fatalf("expected ErrExtractionInProgress for stored processing status, got %v", err)
	}
}

func TestAbandonedProcessingIsTakenOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	// A worker claimed the document an hour ago and never came back.
	processing := StatusProcessing
	stale := time.Now().Add(-time.Hour)
	if _, err := f.repo.Update(ctx, doc.ID, Update{Status: &processing, ProcessingStartedAt: &stale}); err != nil {
		t.Fatalf("update: %v", err)
	}

	release, _ := f.svc.running.acquire(doc.ID)
	if _, err := f.svc.Reprocess(ctx, "user-1", doc.ID); !errors.Is(err, ErrExtractionInProgress) {
		t.Fatalf("expected ErrExtractionInProgress while running here, got %v", err)
	}
	release()

	if _, err := f.svc.Reprocess(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("reprocess abandoned document: %v", err)
	}
	if len(f.jobs.units) != 2 {
		t.Fatalf("expected a second scheduled unit, got %d", len(f.jobs.units))
	}
	if err := f.svc.RunExtraction(ctx, doc.ID); err != nil {
		t.Fatalf("redelivered extraction: %v", err)
	}
	got := f.stored(t, doc.ID)
	if got.Status != StatusReady {
		t.Fatalf("expected ready, got %s", got.Status)
	}
	if got.ProcessingStartedAt == nil || !got.ProcessingStartedAt.After(stale) {
		t.Fatalf("expected a fresh lease, got %v", got.ProcessingStartedAt)
	}
}

func TestLeaseExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &Service{Now: func() time.Time { return now }}
	at := func(d time.Duration) *time.Time { v := now.Add(-d); return &v }

	tests := []struct {
		name    string
		doc     Document
		timeout time.Duration
		want    bool
	}{
		{"not processing", Document{Status: StatusReady, ProcessingStartedAt: at(time.Hour)}, time.Minute, false},
		{"no lease recorded", Document{Status: StatusProcessing}, time.Minute, true},
		{"fresh", Document{Status: StatusProcessing, ProcessingStartedAt: at(30 * time.Second)}, time.Minute, false},
		{"stale", Document{Status: StatusProcessing, ProcessingStartedAt: at(2 * time.Minute)}, time.Minute, true},
		{"default lease", Document{Status: StatusProcessing, ProcessingStartedAt: at(5 * time.Minute)}, 0, false},
	}
	for _, tt := range tests {
		svc.Settings.ExtractionTimeout = tt.timeout
		if got := svc.leaseExpired(tt.doc); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestRunExtractionEnrichmentFillsGaps(t *testing.T) {
	f := newFixture(t)
	f.svc.Enricher = stubEnricher{result: llm.Enrichment{
		Metadata: paper.Metadata{
			Title:    "AI Title",
			Keywords: []string{"abstracts", "heuristics"},
			Language: "en",
		},
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("run extraction: %v", err)
	}
	got := f.stored(t, doc.ID)
	if got.Metadata.Title != "Title Line" {
		t.Fatalf("extracted title overwritten: %q", got.Metadata.Title)
	}
	if len(got.Metadata.Keywords) != 2 || got.Metadata.Language != "en" {
		t.Fatalf("expected gaps filled, got %+v", got.Metadata)
	}
	if len(got.Embedding) != 3 {
		t.Fatalf("expected embedding stored, got %v", got.Embedding)
	}
}

func TestRunExtractionEnrichmentFailureKeepsReady(t *testing.T) {
	f := newFixture(t)
	f.svc.Enricher = stubEnricher{err: errors.New("provider down")}
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("expected enrichment failure to be swallowed, got %v", err)
	}
	if got := f.stored(t, doc.ID); got.Status != StatusReady || len(got.Embedding) != 0 {
		t.Fatalf("expected ready without embedding, got %s %v", got.Status, got.Embedding)
	}
}

func TestHandleRoutesExtractUnits(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	if err := f.svc.Handle(context.Background(), jobs.Unit{Kind: "other", DocumentID: doc.ID}); !jobs.IsPermanent(err) {
		t.Fatalf("expected permanent error for unknown kind, got %v", err)
	}
	if err := f.svc.Handle(context.Background(), f.jobs.units[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := f.stored(t, doc.ID); got.Status != StatusReady {
		t.Fatalf("expected ready, got %s", got.Status)
	}
}

func TestReadsEnforceOwnershipAndSoftDelete(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, "user-2", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
	if _, err := f.svc.Get(ctx, "user-1", "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
	got, err := f.svc.Get(ctx, "user-1", doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastAccessed == nil {
		t.Fatalf("expected last accessed to be set")
	}
	if stored := f.stored(t, doc.ID); stored.Version != doc.Version {
		t.Fatalf("touch must not bump version: %d -> %d", doc.Version, stored.Version)
	}

	if err := f.svc.Delete(ctx, "user-2", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting other owner's document, got %v", err)
	}
	if err := f.svc.Delete(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, "user-1", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted document to read as not found, got %v", err)
	}
	if err := f.svc.Delete(ctx, "user-1", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
	docs, total, err := f.svc.List(ctx, "user-1", ListQuery{})
	if err != nil || total != 0 || len(docs) != 0 {
		t.Fatalf("expected deleted document excluded from list, got %d (%v)", total, err)
	}
}

func TestListValidatesStatus(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.List(context.Background(), "user-1", ListQuery{Status: "bogus"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := f.svc.List(context.Background(), "user-1", ListQuery{Status: StatusDeleted}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for deleted filter, got %v", err)
	}
}

func TestContentRequiresReady(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))
	ctx := context.Background()

	if _, _, err := f.svc.Content(ctx, "user-1", doc.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := f.svc.Analytics(ctx, "user-1", doc.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for analytics, got %v", err)
	}
	if err := f.svc.RunExtraction(ctx, doc.ID); err != nil {
		t.Fatalf("run extraction: %v", err)
	}
	_, text, err := f.svc.Content(ctx, "user-1", doc.ID)
	if err != nil || !strings.Contains(text, "Title Line") {
		t.Fatalf("expected content, got %q (%v)", text, err)
	}
}

func TestDownloadReturnsOriginalBytes(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	_, body, err := f.svc.Download(context.Background(), "user-1", doc.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != sampleTXT {
		t.Fatalf("unexpected bytes: %q", data)
	}
}

func TestPatchStripsMarkup(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	tags := []string{"<b>graphs</b>", "Graphs", "  ", "ml"}
	notes := `<script>alert(1)</script>read <i>section 2</i>`
	fav := true
	got, err := f.svc.Patch(context.Background(), "user-1", doc.ID, PatchInput{Tags: &tags, Notes: &notes, IsFavorite: &fav})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "graphs" || got.Tags[1] != "ml" {
		t.Fatalf("unexpected tags: %v", got.Tags)
	}
	if got.Notes == nil || *got.Notes != "read section 2" {
		t.Fatalf("unexpected notes: %v", got.Notes)
	}
	if !got.IsFavorite {
		t.Fatalf("expected favorite")
	}
	if _, err := f.svc.Patch(context.Background(), "user-1", doc.ID, PatchInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty patch, got %v", err)
	}
	if _, err := f.svc.Patch(context.Background(), "user-2", doc.ID, PatchInput{IsFavorite: &fav}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
}

func TestPatchKeepsPlainTextVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "user-1", "paper.txt", []byte(sampleTXT))

	tags := []string{"R&D", `"quoted"`}
	notes := `Compare "A & B" with O'Neil`
	got, err := f.svc.Patch(ctx, "user-1", doc.ID, PatchInput{Tags: &tags, Notes: &notes})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "R&D" || got.Tags[1] != `"quoted"` {
		t.Fatalf("unexpected tags: %q", got.Tags)
	}
	if got.Notes == nil || *got.Notes != notes {
		t.Fatalf("unexpected notes: %v", got.Notes)
	}

	// Saving the stored values again must not escape them a second time.
	again, err := f.svc.Patch(ctx, "user-1", doc.ID, PatchInput{Tags: &got.Tags, Notes: got.Notes})
	if err != nil {
		t.Fatalf("second patch: %v", err)
	}
	if again.Tags[0] != "R&D" || *again.Notes != notes {
		t.Fatalf("annotations changed on resave: %q %q", again.Tags, *again.Notes)
	}
}

func TestReprocessSchedulesAgain(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "user-1", "paper.pdf", []byte("not a pdf"))
	ctx := context.Background()

	if err := f.svc.RunExtraction(ctx, doc.ID); err == nil {
		t.Fatal("expected extraction failure")
	}
	if _, err := f.svc.Reprocess(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("reprocess failed document: %v", err)
	}
	if len(f.jobs.units) != 2 {
		t.Fatalf("expected a second scheduled unit, got %d", len(f.jobs.units))
	}

	processing := StatusProcessing
	leased := time.Now()
	if _, err := f.repo.Update(ctx, doc.ID, Update{Status: &processing, ProcessingStartedAt: &leased}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := f.svc.Reprocess(ctx, "user-1", doc.ID); !errors.Is(err, ErrExtractionInProgress) {
		t.Fatalf("expected ErrExtractionInProgress, got %v", err)
	}

	f.jobs.err = errors.New("queue down")
	failed := StatusFailed
	if _, err := f.repo.Update(ctx, doc.ID, Update{Status: &failed}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := f.svc.Reprocess(ctx, "user-1", doc.ID); !errors.Is(err, ErrScheduleFailed) {
		t.Fatalf("expected ErrScheduleFailed, got %v", err)
	}
}

func TestSearchAndSimilar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.ingest(t, "user-1", "a.txt", []byte("Graph Learning Survey\n\nMessage passing on graphs."))
	b := f.ingest(t, "user-1", "b.txt", []byte("Protein Folding Notes\n\nStructure prediction."))
	c := f.ingest(t, "user-1", "c.txt", []byte("Graph Kernels Revisited\n\nKernels for graphs."))
	for _, d := range []Document{a, b, c} {
		if err := f.svc.RunExtraction(ctx, d.ID); err != nil {
			t.Fatalf("run extraction: %v", err)
		}
	}

	found, err := f.svc.Search(ctx, "user-1", "graph", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if _, err := f.svc.Search(ctx, "user-1", "   ", 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if _, err := f.svc.Similar(ctx, "user-1", a.ID, 5, 0); !errors.Is(err, ErrNoEmbedding) {
		t.Fatalf("expected ErrNoEmbedding, got %v", err)
	}
	embeddings := map[string][]float32{
		a.ID: {1, 0, 0},
		b.ID: {0, 1, 0},
		c.ID: {0.9, 0.1, 0},
	}
	for id, emb := range embeddings {
		if _, err := f.repo.Update(ctx, id, Update{Embedding: emb}); err != nil {
			t.Fatalf("set embedding: %v", err)
		}
	}
	matches, err := f.svc.Similar(ctx, "user-1", a.ID, 5, 0.5)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(matches) != 1 || matches[0].Document.ID != c.ID {
		t.Fatalf("expected only c, got %+v", matches)
	}
	if _, err := f.svc.Similar(ctx, "user-1", a.ID, 21, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for top_k, got %v", err)
	}
	if _, err := f.svc.Similar(ctx, "user-1", a.ID, 5, 1.5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for min_similarity, got %v", err)
	}
}

func TestAnalyticsReadingTime(t *testing.T) {
	f := newFixture(t)
	body := strings.Repeat("word ", 500)
	doc := f.ingest(t, "user-1", "long.txt", []byte("A Long Enough Title\n\n"+body))
	if err := f.svc.RunExtraction(context.Background(), doc.ID); err != nil {
		t.Fatalf("run extraction: %v", err)
	}
	kw := []string{"reading"}
	if _, err := f.repo.Update(context.Background(), doc.ID, Update{Metadata: &paper.Metadata{Keywords: kw, TotalWords: 500}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	a, err := f.svc.Analytics(context.Background(), "user-1", doc.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.WordCount != 500 || a.ReadingTimeMinutes != 2 {
		t.Fatalf("unexpected analytics: %+v", a)
	}
	if len(a.KeyConcepts) != 1 || a.KeyConcepts[0] != "reading" {
		t.Fatalf("unexpected key concepts: %v", a.KeyConcepts)
	}
}

func TestBatchUploadReportsPerFile(t *testing.T) {
	f := newFixture(t)
	results, err := f.svc.BatchUpload(context.Background(), "user-1", []Upload{
		{Filename: "ok.txt", Data: []byte(sampleTXT)},
		{Filename: "bad.exe", Data: []byte("nope")},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != 2 || results[0].Document == nil || !errors.Is(results[1].Err, ErrUnsupportedType) {
		t.Fatalf("unexpected results: %+v", results)
	}

	many := make([]Upload, 6)
	for i := range many {
		many[i] = Upload{Filename: fmt.Sprintf("f%d.txt", i), Data: []byte("x")}
	}
	if _, err := f.svc.BatchUpload(context.Background(), "user-1", many); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestSanitizeAndClassifyFailure(t *testing.T) {
	msg := sanitizeError(errors.New("line one\nline two\r\n"))
	if msg != "line one line two" {
		t.Fatalf("unexpected sanitized message: %q", msg)
	}
	if got := sanitizeError(errors.New(strings.Repeat("é", 400))); len(got) > maxErrorMessageLen {
		t.Fatalf("expected bounded message, got %d bytes", len(got))
	}
	if got := classifyFailure(context.DeadlineExceeded); got != FailureTimeout {
		t.Fatalf("expected timeout class, got %s", got)
	}
	if got := classifyFailure(errors.New("boom")); got != FailureInternal {
		t.Fatalf("expected internal class, got %s", got)
	}
}

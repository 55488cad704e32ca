package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
	"bitbucket.org/mmdatafocus/reservations_backend/workflow"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	records map[int]*models.Reservation
	audits  []*models.AuditEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[int]*models.Reservation{}}
}

func (s *memoryStore) Get(ctx context.Context, reservationNumber int) (*models.Reservation, error) {
	rec, ok := s.records[reservationNumber]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) Upsert(ctx context.Context, rec *models.Reservation) error {
	cp := *rec
	s.records[rec.ReservationNumber] = &cp
	return nil
}

func (s *memoryStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	s.audits = append(s.audits, entry)
	return nil
}

func (s *memoryStore) Transact(ctx context.Context, reservationNumber int, fn func(tx workflow.Store) error) error {
	return fn(s)
}

// brokenStore simulates an unreachable database.
type brokenStore struct{ memoryStore }

func (s *brokenStore) Upsert(ctx context.Context, rec *models.Reservation) error {
	return fmt.Errorf("%w: connection refused", utils.ErrStoreUnavailable)
}

func (s *brokenStore) Transact(ctx context.Context, reservationNumber int, fn func(tx workflow.Store) error) error {
	return fn(s)
}

type stubTexts struct {
	calls int
	err   error
}

func (t *stubTexts) ExtractText(ctx context.Context, content []byte) (string, error) {
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return string(content), nil
}

// stubFields hands back canned fields keyed by the document text.
type stubFields struct {
	calls  int
	byText map[string]extract.CandidateFields
	err    error
}

func (f *stubFields) ExtractFields(ctx context.Context, text string) (extract.CandidateFields, error) {
	f.calls++
	if f.err != nil {
		return extract.CandidateFields{}, f.err
	}
	return f.byText[text], nil
}

type stubSource struct{ docs []Document }

func (s *stubSource) Fetch(ctx context.Context, maxCount int) ([]Document, error) {
	if maxCount < len(s.docs) {
		return s.docs[:maxCount], nil
	}
	return s.docs, nil
}

func runnerSettings() *config.PipelineSettings {
	return &config.PipelineSettings{
		VatRate:       decimal.NewFromFloat(0.17),
		Timezone:      time.UTC,
		MaxDocsPerRun: 20,
		ActorTag:      "test-pipeline",
	}
}

func wellFormedFields(num, edition int) extract.CandidateFields {
	return extract.CandidateFields{
		ReservationNumber: json.Number(fmt.Sprintf("%d", num)),
		Edition:           json.Number(fmt.Sprintf("%d", edition)),
		EventDate:         "24/12/2026",
		NetAmount:         json.Number("100"),
		Status:            "future_order",
	}
}

func newTestRunner(store workflow.Store, texts extract.TextExtractor, fields extract.FieldExtractor) *Runner {
	logger := config.GetLogger()
	engine := workflow.NewEngine(store, logger, runnerSettings())
	return NewRunner(store, engine, texts, fields, nil, logger, runnerSettings())
}

func TestProcessBatch_IsolatesDocumentFailures(t *testing.T) {
	store := newMemoryStore()
	texts := &stubTexts{}
	fields := &stubFields{byText: map[string]extract.CandidateFields{
		"doc-a": wellFormedFields(1001, 1),
		"doc-b": {}, // nothing derivable: malformed identity
		"doc-c": wellFormedFields(3003, 0),
	}}
	runner := newTestRunner(store, texts, fields)

	summary, err := runner.ProcessBatch(context.Background(), &stubSource{docs: []Document{
		{Filename: "RES_1001_1.pdf", Content: []byte("doc-a")},
		{Filename: "quote.pdf", Content: []byte("doc-b")},
		{Filename: "RES_3003_0.pdf", Content: []byte("doc-c")},
	}}, 0)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if summary.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", summary.Processed)
	}
	if summary.Decisions[models.DecisionCreate] != 2 {
		t.Fatalf("expected 2 creates, got %v", summary.Decisions)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", summary.Failures)
	}
	f := summary.Failures[0]
	if f.Filename != "quote.pdf" || f.Deferred {
		t.Fatalf("unexpected failure record %+v", f)
	}
	if !strings.Contains(f.Error, utils.ErrMalformedIdentity.Error()) {
		t.Fatalf("expected a malformed-identity error, got %q", f.Error)
	}
	if summary.NeedsRerun() {
		t.Fatal("a malformed document must not force a rerun")
	}
	if _, ok := store.records[1001]; !ok {
		t.Fatal("well-formed documents around a failure must still land")
	}
}

func TestProcessBatch_EarlySkipAvoidsExtraction(t *testing.T) {
	store := newMemoryStore()
	store.records[1001] = &models.Reservation{
		ReservationNumber: 1001,
		Edition:           2,
		EventDate:         time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC),
		NetAmount:         decimal.NewFromInt(100),
		GrossAmount:       decimal.NewFromInt(117),
		Status:            models.ReservationStatusActive,
		Paid:              true,
		Version:           3,
	}

	texts := &stubTexts{}
	fields := &stubFields{byText: map[string]extract.CandidateFields{}}
	runner := newTestRunner(store, texts, fields)

	summary, err := runner.ProcessBatch(context.Background(), &stubSource{docs: []Document{
		{Filename: "RES_1001_2.pdf", Content: []byte("re-sent paid order")},
	}}, 0)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if texts.calls != 0 || fields.calls != 0 {
		t.Fatalf("terminal re-send must not reach the extractors (text=%d fields=%d)", texts.calls, fields.calls)
	}
	if summary.Decisions[models.DecisionSkipDuplicate] != 1 {
		t.Fatalf("expected an audited SKIP_DUPLICATE, got %v", summary.Decisions)
	}
	if len(store.audits) != 1 {
		t.Fatalf("early skip must still be journaled, got %d entries", len(store.audits))
	}
}

func TestProcessBatch_NewerEditionBypassesGuard(t *testing.T) {
	store := newMemoryStore()
	store.records[1001] = &models.Reservation{
		ReservationNumber: 1001,
		Edition:           1,
		EventDate:         time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC),
		NetAmount:         decimal.NewFromInt(100),
		GrossAmount:       decimal.NewFromInt(117),
		Status:            models.ReservationStatusActive,
		Paid:              true,
		Version:           2,
	}

	texts := &stubTexts{}
	fields := &stubFields{byText: map[string]extract.CandidateFields{
		"edition two": wellFormedFields(1001, 2),
	}}
	runner := newTestRunner(store, texts, fields)

	if _, err := runner.ProcessBatch(context.Background(), &stubSource{docs: []Document{
		{Filename: "RES_1001_2.pdf", Content: []byte("edition two")},
	}}, 0); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if texts.calls != 1 {
		t.Fatalf("a newer edition of a terminal record must still be extracted")
	}
}

func TestProcessBatch_StoreOutageIsDeferred(t *testing.T) {
	store := &brokenStore{memoryStore{records: map[int]*models.Reservation{}}}
	texts := &stubTexts{}
	fields := &stubFields{byText: map[string]extract.CandidateFields{
		"doc-a": wellFormedFields(1001, 1),
	}}
	runner := newTestRunner(store, texts, fields)

	summary, err := runner.ProcessBatch(context.Background(), &stubSource{docs: []Document{
		{Filename: "RES_1001_1.pdf", Content: []byte("doc-a")},
	}}, 0)
	if err != nil {
		t.Fatalf("batch itself must survive a store outage: %v", err)
	}

	if len(summary.Failures) != 1 || !summary.Failures[0].Deferred {
		t.Fatalf("store outage must surface as a deferred failure, got %+v", summary.Failures)
	}
	if !summary.NeedsRerun() {
		t.Fatal("deferred failures must request a rerun")
	}
}

func TestProcessBatch_ExtractionFailureIsPermanent(t *testing.T) {
	store := newMemoryStore()
	texts := &stubTexts{err: errors.New("tika: 503")}
	runner := newTestRunner(store, texts, &stubFields{})

	summary, err := runner.ProcessBatch(context.Background(), &stubSource{docs: []Document{
		{Filename: "RES_1001_1.pdf", Content: []byte("doc-a")},
	}}, 0)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", summary.Failures)
	}
	if summary.Failures[0].Deferred {
		t.Fatal("extraction failures are not store outages and must not defer")
	}
}

func TestProcessBatch_RespectsMaxCount(t *testing.T) {
	store := newMemoryStore()
	texts := &stubTexts{}
	fields := &stubFields{byText: map[string]extract.CandidateFields{
		"doc-a": wellFormedFields(1001, 0),
		"doc-b": wellFormedFields(2002, 0),
	}}
	runner := newTestRunner(store, texts, fields)

	summary, err := runner.ProcessBatch(context.Background(), &stubSource{docs: []Document{
		{Filename: "RES_1001_0.pdf", Content: []byte("doc-a")},
		{Filename: "RES_2002_0.pdf", Content: []byte("doc-b")},
	}}, 1)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected maxCount to bound the batch, got %d processed", summary.Processed)
	}
}

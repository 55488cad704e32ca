package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/notify"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
	"bitbucket.org/mmdatafocus/reservations_backend/workflow"
	"github.com/sirupsen/logrus"
)

// DocumentFailure records one document that did not reach a decision.
// Deferred failures (store unavailable) should be retried on the next run;
// the rest are permanently skipped.
type DocumentFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Deferred bool   `json:"deferred"`
}

// RunSummary is what one batch hands back to the trigger surface.
type RunSummary struct {
	Processed int                     `json:"processed"`
	Decisions map[models.Decision]int `json:"decisions"`
	Failures  []DocumentFailure       `json:"failures"`
}

func (s RunSummary) NeedsRerun() bool {
	for _, f := range s.Failures {
		if f.Deferred {
			return true
		}
	}
	return false
}

// Runner drives one batch end to end: text extraction, field extraction,
// identity resolution, validation, reconciliation, alert dispatch. Each
// document is isolated; one bad document never stops the rest.
type Runner struct {
	store     workflow.Store
	engine    *workflow.Engine
	texts     extract.TextExtractor
	fields    extract.FieldExtractor
	notifier  notify.Notifier
	logger    *logrus.Logger
	settings  *config.PipelineSettings
	archiving bool
}

func NewRunner(store workflow.Store, engine *workflow.Engine, texts extract.TextExtractor, fields extract.FieldExtractor, notifier notify.Notifier, logger *logrus.Logger, settings *config.PipelineSettings) *Runner {
	return &Runner{
		store:     store,
		engine:    engine,
		texts:     texts,
		fields:    fields,
		notifier:  notifier,
		logger:    logger,
		settings:  settings,
		archiving: os.Getenv("GCS_BUCKET") != "",
	}
}

// ProcessBatch runs the pipeline over one source, bounded by maxCount
// (0 falls back to the configured default).
func (r *Runner) ProcessBatch(ctx context.Context, source Source, maxCount int) (RunSummary, error) {
	if maxCount <= 0 {
		maxCount = r.settings.MaxDocsPerRun
	}

	summary := RunSummary{Decisions: map[models.Decision]int{}}

	docs, err := source.Fetch(ctx, maxCount)
	if err != nil {
		return summary, fmt.Errorf("fetching documents: %w", err)
	}
	config.LogPipelineEvent(r.logger, "pipeline", "run_start", 0, 0,
		fmt.Sprintf("%d documents", len(docs)))

	for _, doc := range docs {
		decision, err := r.processDocument(ctx, doc)
		if err != nil {
			summary.Failures = append(summary.Failures, DocumentFailure{
				Filename: doc.Filename,
				Error:    err.Error(),
				Deferred: errors.Is(err, utils.ErrStoreUnavailable),
			})
			config.LogError(r.logger, "runner.go", "ProcessBatch", "Processing document", doc.Filename, err)
			continue
		}
		summary.Processed++
		summary.Decisions[decision]++
	}

	config.LogPipelineEvent(r.logger, "pipeline", "run_done", 0, 0,
		fmt.Sprintf("processed=%d failures=%d", summary.Processed, len(summary.Failures)))
	return summary, nil
}

func (r *Runner) processDocument(ctx context.Context, doc Document) (models.Decision, error) {
	// Cost-control guard: a terminal record at the same or newer edition
	// needs no extraction call at all. The identity index in the store is
	// the only duplicate guard; nothing is cached across documents.
	if hint, ok := ParseFilenameHint(doc.Filename); ok {
		prior, err := r.store.Get(ctx, hint.ReservationNumber)
		if err != nil {
			return "", err
		}
		if prior != nil && hint.Edition <= prior.Edition && (prior.Cancelled() || prior.Locked()) {
			out, err := r.engine.RecordEarlySkip(ctx, hint,
				fmt.Sprintf("terminal at stored edition %d", prior.Edition))
			if err != nil {
				return "", err
			}
			return out.Decision, nil
		}
	}

	text, err := r.texts.ExtractText(ctx, doc.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrExtractionFailed, err)
	}

	cand, err := r.fields.ExtractFields(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrExtractionFailed, err)
	}

	key, err := ResolveIdentity(doc.Filename, cand)
	if err != nil {
		return "", err
	}

	// The resolved identity is authoritative over whatever the extractor
	// guessed from the document body.
	cand.ReservationNumber = json.Number(strconv.Itoa(key.ReservationNumber))
	cand.Edition = json.Number(strconv.Itoa(key.Edition))

	result := extract.ValidateCandidate(cand, r.settings.VatRate)

	outcome, err := r.engine.ProcessCandidate(ctx, key, result)
	if err != nil {
		return "", err
	}

	if event := notify.PlanEvent(outcome); event != nil && r.notifier != nil {
		if err := r.notifier.Send(ctx, *event); err != nil {
			// Alerts are decoupled from persistence: log and move on.
			config.LogError(r.logger, "runner.go", "processDocument", "Sending alert", doc.Filename, err)
		}
	}

	if r.archiving && outcome.Decision.Mutates() {
		if err := utils.ArchiveDocumentToGCS(ctx, doc.Filename, doc.Content); err != nil {
			config.LogError(r.logger, "runner.go", "processDocument", "Archiving document", doc.Filename, err)
		}
	}

	return outcome.Decision, nil
}

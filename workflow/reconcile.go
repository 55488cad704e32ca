package workflow

import (
	"context"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
	"github.com/sirupsen/logrus"
)

// Outcome is one reconciliation result: the decision, the field diff it
// applied (or, for SKIP_LOCKED, the diff it refused to apply), and a short
// reason for the audit trail.
type Outcome struct {
	Decision models.Decision
	Changes  []models.FieldChange
	Reason   string
	Record   *models.Reservation
}

// protectedFields are frozen once a reservation is paid or invoiced.
var protectedFields = map[string]bool{
	"net_amount":   true,
	"gross_amount": true,
	"event_date":   true,
	"event_time":   true,
	"guest_count":  true,
}

func timePtrString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// candidateDiff lists every field whose candidate value differs from the
// prior record, protected fields first.
func candidateDiff(prior *models.Reservation, cand *extract.ValidatedRecord) (protected, other []models.FieldChange) {
	add := func(field, old, new_ string) {
		c := models.FieldChange{Field: field, Old: old, New: new_}
		if protectedFields[field] {
			protected = append(protected, c)
		} else {
			other = append(other, c)
		}
	}

	if !prior.NetAmount.Equal(cand.NetAmount) {
		add("net_amount", prior.NetAmount.String(), cand.NetAmount.String())
	}
	if !prior.GrossAmount.Equal(cand.GrossAmount) {
		add("gross_amount", prior.GrossAmount.String(), cand.GrossAmount.String())
	}
	if !prior.EventDate.Equal(cand.EventDate) {
		add("event_date", prior.EventDate.Format("2006-01-02"), cand.EventDate.Format("2006-01-02"))
	}
	if timePtrString(prior.EventTime) != timePtrString(cand.EventTime) {
		add("event_time", timePtrString(prior.EventTime), timePtrString(cand.EventTime))
	}
	if prior.GuestCount != cand.GuestCount {
		add("guest_count", strconv.Itoa(prior.GuestCount), strconv.Itoa(cand.GuestCount))
	}
	if prior.VatIncluded != cand.VatIncluded {
		add("vat_included", strconv.FormatBool(prior.VatIncluded), strconv.FormatBool(cand.VatIncluded))
	}
	if prior.Status != cand.Status {
		add("status", string(prior.Status), string(cand.Status))
	}
	if prior.ContactName != cand.ContactName {
		add("contact_name", prior.ContactName, cand.ContactName)
	}
	if prior.ContactEmail != cand.ContactEmail {
		add("contact_email", prior.ContactEmail, cand.ContactEmail)
	}
	if prior.Description != cand.Description {
		add("description", prior.Description, cand.Description)
	}
	return protected, other
}

func createChanges(rec *models.Reservation) []models.FieldChange {
	changes := []models.FieldChange{
		{Field: "reservation_number", New: strconv.Itoa(rec.ReservationNumber)},
		{Field: "edition", New: strconv.Itoa(rec.Edition)},
		{Field: "event_date", New: rec.EventDate.Format("2006-01-02")},
		{Field: "net_amount", New: rec.NetAmount.String()},
		{Field: "gross_amount", New: rec.GrossAmount.String()},
		{Field: "status", New: string(rec.Status)},
	}
	if rec.EventTime != nil {
		changes = append(changes, models.FieldChange{Field: "event_time", New: *rec.EventTime})
	}
	if rec.GuestCount != 0 {
		changes = append(changes, models.FieldChange{Field: "guest_count", New: strconv.Itoa(rec.GuestCount)})
	}
	return changes
}

func newReservation(cand *extract.ValidatedRecord) *models.Reservation {
	return &models.Reservation{
		ReservationNumber: cand.ReservationNumber,
		Edition:           cand.Edition,
		EventDate:         cand.EventDate,
		EventTime:         cand.EventTime,
		GuestCount:        cand.GuestCount,
		NetAmount:         cand.NetAmount,
		GrossAmount:       cand.GrossAmount,
		VatIncluded:       cand.VatIncluded,
		Status:            cand.Status,
		ContactName:       cand.ContactName,
		ContactEmail:      cand.ContactEmail,
		Description:       cand.Description,
		Paid:              cand.Paid,
		InvoiceSent:       cand.InvoiceSent,
		Version:           1,
	}
}

// Decide is the pure transition function over (candidate, prior-or-absence).
// It never touches the store; the caller fetches prior under the
// per-reservation lock immediately before calling it.
//
// Rules, in order: invalid candidate; absent prior; cancelled prior is
// terminal; cancellation override; financial lock; edition-gated update;
// everything left is a duplicate.
func Decide(res extract.Result, prior *models.Reservation) Outcome {
	if !res.Valid() {
		return Outcome{
			Decision: models.DecisionSkipInvalid,
			Reason:   strings.Join(res.Reasons, "; "),
		}
	}
	cand := res.Record

	if prior == nil {
		rec := newReservation(cand)
		return Outcome{
			Decision: models.DecisionCreate,
			Changes:  createChanges(rec),
			Record:   rec,
		}
	}

	if prior.Cancelled() {
		return Outcome{
			Decision: models.DecisionSkipDuplicate,
			Reason:   "reservation already cancelled",
		}
	}

	protected, other := candidateDiff(prior, cand)

	if cand.Status == models.ReservationStatusCancelled {
		return applyCancellation(prior, cand, protected, other)
	}

	if prior.Locked() && len(protected) > 0 {
		return Outcome{
			Decision: models.DecisionSkipLocked,
			Changes:  protected,
			Reason:   "locked",
		}
	}

	if cand.Edition >= prior.Edition && len(protected)+len(other) > 0 {
		return applyUpdate(prior, cand, append(protected, other...))
	}

	reason := "identical candidate"
	if cand.Edition < prior.Edition {
		reason = "older edition " + strconv.Itoa(cand.Edition) + " (stored " + strconv.Itoa(prior.Edition) + ")"
	}
	return Outcome{
		Decision: models.DecisionSkipDuplicate,
		Reason:   reason,
	}
}

func applyUpdate(prior *models.Reservation, cand *extract.ValidatedRecord, changes []models.FieldChange) Outcome {
	updated := *prior
	updated.Edition = cand.Edition
	updated.EventDate = cand.EventDate
	updated.EventTime = cand.EventTime
	updated.GuestCount = cand.GuestCount
	updated.NetAmount = cand.NetAmount
	updated.GrossAmount = cand.GrossAmount
	updated.VatIncluded = cand.VatIncluded
	updated.Status = cand.Status
	updated.ContactName = cand.ContactName
	updated.ContactEmail = cand.ContactEmail
	updated.Description = cand.Description
	// Lock flags only ever engage here; releasing them is a back-office act.
	updated.Paid = prior.Paid || cand.Paid
	updated.InvoiceSent = prior.InvoiceSent || cand.InvoiceSent
	updated.Version = prior.Version + 1

	return Outcome{
		Decision: models.DecisionUpdate,
		Changes:  changes,
		Record:   &updated,
	}
}

// applyCancellation flips the record to Cancelled regardless of lock state.
// Protected financial fields stay frozen when the record was locked; on an
// unlocked record they take the candidate's final values.
func applyCancellation(prior *models.Reservation, cand *extract.ValidatedRecord, protected, other []models.FieldChange) Outcome {
	cancelled := *prior
	changes := make([]models.FieldChange, 0, len(protected)+len(other))

	if !prior.Locked() {
		cancelled.EventDate = cand.EventDate
		cancelled.EventTime = cand.EventTime
		cancelled.GuestCount = cand.GuestCount
		cancelled.NetAmount = cand.NetAmount
		cancelled.GrossAmount = cand.GrossAmount
		cancelled.VatIncluded = cand.VatIncluded
		changes = append(changes, protected...)
	}
	cancelled.Edition = cand.Edition
	cancelled.Status = models.ReservationStatusCancelled
	cancelled.ContactName = cand.ContactName
	cancelled.ContactEmail = cand.ContactEmail
	cancelled.Description = cand.Description
	cancelled.Version = prior.Version + 1
	changes = append(changes, other...)

	reason := "cancelled"
	if prior.Locked() {
		reason = "cancelled (financial fields frozen)"
	}
	return Outcome{
		Decision: models.DecisionCancelledOverride,
		Changes:  changes,
		Reason:   reason,
		Record:   &cancelled,
	}
}

// Engine applies reconciliation decisions against the store, one document
// at a time, and appends the audit entry in the same transaction.
type Engine struct {
	store    Store
	logger   *logrus.Logger
	settings *config.PipelineSettings
	now      func() time.Time
}

func NewEngine(store Store, logger *logrus.Logger, settings *config.PipelineSettings) *Engine {
	return &Engine{
		store:    store,
		logger:   logger,
		settings: settings,
		now:      time.Now,
	}
}

// ProcessCandidate reconciles one candidate under the reservation lock.
// The prior record is re-fetched inside the transaction: paid/invoice_sent
// may have been toggled externally since any earlier lookup in this run.
// On store failure nothing is audited, so a deferred document never looks
// processed.
func (e *Engine) ProcessCandidate(ctx context.Context, key models.IdentityKey, res extract.Result) (Outcome, error) {
	var out Outcome
	err := e.store.Transact(ctx, key.ReservationNumber, func(tx Store) error {
		prior, err := tx.Get(ctx, key.ReservationNumber)
		if err != nil {
			return err
		}

		out = Decide(res, prior)

		if out.Decision.Mutates() {
			if err := tx.Upsert(ctx, out.Record); err != nil {
				return err
			}
		}

		return tx.AppendAudit(ctx, e.buildAuditEntry(ctx, key, out))
	})
	if err != nil {
		config.LogError(e.logger, "reconcile.go", "ProcessCandidate", "Reconciling candidate", key, err)
		return Outcome{}, err
	}

	config.LogPipelineEvent(e.logger, "workflow", "reconciled",
		key.ReservationNumber, key.Edition, string(out.Decision))
	return out, nil
}

// RecordEarlySkip journals a duplicate decision made before extraction,
// when the store already holds the same or a newer edition in a terminal
// state. Keeps the one-audit-entry-per-document rule intact without paying
// for an extraction call.
func (e *Engine) RecordEarlySkip(ctx context.Context, key models.IdentityKey, reason string) (Outcome, error) {
	out := Outcome{
		Decision: models.DecisionSkipDuplicate,
		Reason:   reason,
	}
	err := e.store.Transact(ctx, key.ReservationNumber, func(tx Store) error {
		return tx.AppendAudit(ctx, e.buildAuditEntry(ctx, key, out))
	})
	if err != nil {
		return Outcome{}, err
	}
	config.LogPipelineEvent(e.logger, "workflow", "skip_terminal",
		key.ReservationNumber, key.Edition, reason)
	return out, nil
}

func (e *Engine) buildAuditEntry(ctx context.Context, key models.IdentityKey, out Outcome) *models.AuditEntry {
	now := e.now()
	changed := "[]"
	if len(out.Changes) > 0 {
		if s, err := utils.MarshalToJSON(out.Changes); err == nil {
			changed = s
		}
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	actor, ok := utils.GetActorFromContext(ctx)
	if !ok {
		actor = e.settings.ActorTag
	}

	return &models.AuditEntry{
		JournalMonth:      models.JournalMonthOf(now),
		RecordedAt:        now,
		ReservationNumber: key.ReservationNumber,
		Edition:           key.Edition,
		Decision:          out.Decision,
		ChangedFields:     changed,
		Actor:             actor,
		Reason:            out.Reason,
		CorrelationId:     correlationId,
	}
}

package notify

import (
	"context"

	"bitbucket.org/mmdatafocus/reservations_backend/models"
)

type EventKind string

const (
	EventKindNew    EventKind = "NEW"
	EventKindUpdate EventKind = "UPDATE"
	EventKindDigest EventKind = "DIGEST"
)

// Event is one outbound alert. NEW carries the full created record, UPDATE
// carries the record plus its changed-field diff, DIGEST carries the day's
// upcoming reservations.
type Event struct {
	Kind        EventKind
	Reservation *models.Reservation
	Changes     []models.FieldChange
	Digest      []models.Reservation
}

// Notifier delivers events to the chat alert channel. Delivery is
// best-effort: failures are logged by the caller and never retried within
// the run, and never block reconciliation or audit recording.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

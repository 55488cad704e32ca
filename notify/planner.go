package notify

import (
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/workflow"
)

// PlanEvent maps a reconciliation outcome to zero-or-one live alert.
// Creates announce the full record, updates and cancellations announce the
// diff; every skip stays silent.
func PlanEvent(out workflow.Outcome) *Event {
	switch out.Decision {
	case models.DecisionCreate:
		return &Event{Kind: EventKindNew, Reservation: out.Record}
	case models.DecisionUpdate, models.DecisionCancelledOverride:
		return &Event{Kind: EventKindUpdate, Reservation: out.Record, Changes: out.Changes}
	}
	return nil
}

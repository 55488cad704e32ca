package notify

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/workflow"
	"github.com/shopspring/decimal"
)

func digestReservation(num int, day time.Time, eventTime *string, status models.ReservationStatus) models.Reservation {
	return models.Reservation{
		ReservationNumber: num,
		EventDate:         day,
		EventTime:         eventTime,
		GuestCount:        10,
		NetAmount:         decimal.NewFromInt(100),
		GrossAmount:       decimal.NewFromInt(117),
		Status:            status,
	}
}

func TestBuildDigest_TodayAndTomorrowOnly(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, loc)
	today := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	morning := "10:00"
	evening := "19:00"
	records := []models.Reservation{
		digestReservation(3, today.AddDate(0, 0, 1), &morning, models.ReservationStatusActive),
		digestReservation(1, today, &evening, models.ReservationStatusActive),
		digestReservation(2, today, &morning, models.ReservationStatusActive),
		digestReservation(4, today.AddDate(0, 0, 2), &morning, models.ReservationStatusActive),
		digestReservation(5, today, &morning, models.ReservationStatusCancelled),
	}

	rows := BuildDigest(records, now, loc)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	wantOrder := []int{2, 1, 3}
	for i, want := range wantOrder {
		if rows[i].ReservationNumber != want {
			t.Fatalf("row %d: expected #%d, got #%d", i, want, rows[i].ReservationNumber)
		}
	}
}

func TestBuildDigest_NilTimeSortsFirst(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	today := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	morning := "10:00"

	rows := BuildDigest([]models.Reservation{
		digestReservation(1, today, &morning, models.ReservationStatusActive),
		digestReservation(2, today, nil, models.ReservationStatusActive),
	}, now, time.UTC)

	if len(rows) != 2 || rows[0].ReservationNumber != 2 {
		t.Fatalf("reservation without a time must sort first, got %v", rows)
	}
}

func TestBuildDigest_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	rows := BuildDigest([]models.Reservation{
		digestReservation(1, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), nil, models.ReservationStatusActive),
	}, now, time.UTC)
	if len(rows) != 0 {
		t.Fatalf("expected empty digest, got %d rows", len(rows))
	}
}

func TestPlanEvent(t *testing.T) {
	rec := digestReservation(1001, time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC), nil, models.ReservationStatusActive)
	changes := []models.FieldChange{{Field: "guest_count", Old: "10", New: "14"}}

	cases := []struct {
		name     string
		out      workflow.Outcome
		wantKind EventKind
		wantNil  bool
	}{
		{"create", workflow.Outcome{Decision: models.DecisionCreate, Record: &rec}, EventKindNew, false},
		{"update", workflow.Outcome{Decision: models.DecisionUpdate, Record: &rec, Changes: changes}, EventKindUpdate, false},
		{"cancellation", workflow.Outcome{Decision: models.DecisionCancelledOverride, Record: &rec}, EventKindUpdate, false},
		{"skip locked", workflow.Outcome{Decision: models.DecisionSkipLocked, Changes: changes}, "", true},
		{"skip duplicate", workflow.Outcome{Decision: models.DecisionSkipDuplicate}, "", true},
		{"skip invalid", workflow.Outcome{Decision: models.DecisionSkipInvalid}, "", true},
	}

	for _, c := range cases {
		ev := PlanEvent(c.out)
		if c.wantNil {
			if ev != nil {
				t.Fatalf("%s: expected no event, got %+v", c.name, ev)
			}
			continue
		}
		if ev == nil {
			t.Fatalf("%s: expected an event", c.name)
		}
		if ev.Kind != c.wantKind {
			t.Fatalf("%s: expected kind %s, got %s", c.name, c.wantKind, ev.Kind)
		}
	}
}

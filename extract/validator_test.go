package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"github.com/shopspring/decimal"
)

var testVatRate = decimal.NewFromFloat(0.17)

func validCandidate() CandidateFields {
	guests := json.Number("12")
	return CandidateFields{
		ReservationNumber: json.Number("1001"),
		Edition:           json.Number("0"),
		EventDate:         "24/12/2026",
		EventTime:         "18:30",
		GuestCount:        &guests,
		NetAmount:         json.Number("100"),
		VatIncluded:       false,
		Status:            "future_order",
		ContactEmail:      "events@example.edu",
	}
}

func TestValidateCandidate_VatExclusiveAddsExactVat(t *testing.T) {
	res := ValidateCandidate(validCandidate(), testVatRate)
	if !res.Valid() {
		t.Fatalf("expected valid result, got reasons %v", res.Reasons)
	}
	if got := res.Record.GrossAmount.StringFixed(2); got != "117.00" {
		t.Fatalf("expected gross 117.00, got %s", got)
	}
}

func TestValidateCandidate_VatInclusiveKeepsNet(t *testing.T) {
	c := validCandidate()
	c.VatIncluded = true
	res := ValidateCandidate(c, testVatRate)
	if !res.Valid() {
		t.Fatalf("expected valid result, got reasons %v", res.Reasons)
	}
	if !res.Record.GrossAmount.Equal(res.Record.NetAmount) {
		t.Fatalf("expected gross == net, got %s vs %s", res.Record.GrossAmount, res.Record.NetAmount)
	}
}

func TestValidateCandidate_FailClosed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CandidateFields)
		reason string
	}{
		{"missing reservation number", func(c *CandidateFields) { c.ReservationNumber = "" }, "reservation_number"},
		{"zero reservation number", func(c *CandidateFields) { c.ReservationNumber = "0" }, "reservation_number"},
		{"negative edition", func(c *CandidateFields) { c.Edition = "-1" }, "edition"},
		{"unparseable date", func(c *CandidateFields) { c.EventDate = "tomorrow-ish" }, "event date"},
		{"negative amount", func(c *CandidateFields) { c.NetAmount = "-5" }, "net_amount"},
		{"missing amount", func(c *CandidateFields) { c.NetAmount = "" }, "net_amount"},
		{"negative guests", func(c *CandidateFields) { g := json.Number("-3"); c.GuestCount = &g }, "guest_count"},
		{"unknown status", func(c *CandidateFields) { c.Status = "maybe" }, "status"},
		{"bad email", func(c *CandidateFields) { c.ContactEmail = "not-an-email" }, "ContactEmail"},
		{"bad time", func(c *CandidateFields) { c.EventTime = "half past six" }, "EventTime"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCandidate()
			tc.mutate(&c)
			res := ValidateCandidate(c, testVatRate)
			if res.Valid() {
				t.Fatalf("expected invalid result")
			}
			if res.Record != nil {
				t.Fatalf("invalid result must not carry a partial record")
			}
			joined := strings.Join(res.Reasons, "; ")
			if !strings.Contains(joined, tc.reason) {
				t.Fatalf("expected reason mentioning %q, got %q", tc.reason, joined)
			}
		})
	}
}

func TestValidateCandidate_CollectsAllReasons(t *testing.T) {
	c := validCandidate()
	c.NetAmount = "-5"
	c.EventDate = "???"
	res := ValidateCandidate(c, testVatRate)
	if len(res.Reasons) < 2 {
		t.Fatalf("expected every violation listed, got %v", res.Reasons)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		in     string
		status models.ReservationStatus
		ok     bool
	}{
		{"future_order", models.ReservationStatusActive, true},
		{"updated", models.ReservationStatusActive, true},
		{"Cancelled", models.ReservationStatusCancelled, true},
		{"canceled", models.ReservationStatusCancelled, true},
		{"  CANCEL  ", models.ReservationStatusCancelled, true},
		{"בוטל", models.ReservationStatusCancelled, true},
		{"gibberish", "", false},
	}
	for _, tc := range cases {
		status, ok := NormalizeStatus(tc.in)
		if ok != tc.ok || status != tc.status {
			t.Fatalf("NormalizeStatus(%q) = (%q, %v), expected (%q, %v)", tc.in, status, ok, tc.status, tc.ok)
		}
	}
}

func TestValidateCandidate_AcceptsIsoDates(t *testing.T) {
	c := validCandidate()
	c.EventDate = "2026-12-24"
	res := ValidateCandidate(c, testVatRate)
	if !res.Valid() {
		t.Fatalf("expected valid result, got reasons %v", res.Reasons)
	}
	if got := res.Record.EventDate.Format("02/01/2006"); got != "24/12/2026" {
		t.Fatalf("expected 24/12/2026, got %s", got)
	}
}

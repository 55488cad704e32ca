package extract

import (
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidatedRecord is a candidate that passed the full schema check, with
// the gross amount derived. It carries everything needed to create or
// update a Reservation; lifecycle flags and version stay with the store.
type ValidatedRecord struct {
	ReservationNumber int     `validate:"required,gt=0"`
	Edition           int     `validate:"gte=0"`
	EventDate         time.Time
	EventTime         *string `validate:"omitempty,datetime=15:04"`
	GuestCount        int     `validate:"gte=0"`
	NetAmount         decimal.Decimal
	GrossAmount       decimal.Decimal
	VatIncluded       bool
	Status            models.ReservationStatus
	ContactName       string
	ContactEmail      string `validate:"omitempty,email"`
	Description       string
	Paid              bool
	InvoiceSent       bool
}

// Result is the tagged outcome of validation: either Record is set and
// Reasons is empty, or Record is nil and Reasons explains every violation.
// No partial record is ever produced.
type Result struct {
	Record  *ValidatedRecord
	Reasons []string
}

func (r Result) Valid() bool {
	return r.Record != nil && len(r.Reasons) == 0
}

func invalid(reasons []string) Result {
	return Result{Reasons: reasons}
}

var validate = validator.New()

var cancelledCues = map[string]bool{
	"cancelled": true,
	"canceled":  true,
	"cancel":    true,
	"בוטל":      true,
	"מבוטלת":    true,
}

// NormalizeStatus maps the extractor's free-form status cue onto the two
// persisted states. The original purchase orders surface "future_order" /
// "updated" for live editions and several spellings of cancellation.
func NormalizeStatus(raw string) (models.ReservationStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if cancelledCues[s] {
		return models.ReservationStatusCancelled, true
	}
	switch s {
	case "active", "future_order", "updated", "new":
		return models.ReservationStatusActive, true
	}
	return "", false
}

func parseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable event date %q", raw)
}

// GrossFromNet derives the gross amount under the fixed VAT rule:
// the net already includes VAT, or VAT is added on top and rounded to
// two decimal places.
func GrossFromNet(net decimal.Decimal, vatIncluded bool, vatRate decimal.Decimal) decimal.Decimal {
	if vatIncluded {
		return net
	}
	return net.Mul(decimal.NewFromInt(1).Add(vatRate)).Round(2)
}

// ValidateCandidate enforces the fixed schema over one extraction result.
// Fail-closed: every violation is collected and any violation at all yields
// an invalid result with no record.
func ValidateCandidate(c CandidateFields, vatRate decimal.Decimal) Result {
	var reasons []string

	resNum64, err := c.ReservationNumber.Int64()
	if err != nil || resNum64 <= 0 {
		reasons = append(reasons, fmt.Sprintf("reservation_number %q is not a positive integer", c.ReservationNumber.String()))
	}

	edition64, err := c.Edition.Int64()
	if err != nil || edition64 < 0 {
		reasons = append(reasons, fmt.Sprintf("edition %q is not a non-negative integer", c.Edition.String()))
	}

	status, ok := NormalizeStatus(c.Status)
	if !ok {
		reasons = append(reasons, fmt.Sprintf("unknown status %q", c.Status))
	}

	eventDate, err := parseEventDate(c.EventDate)
	if err != nil {
		reasons = append(reasons, err.Error())
	}

	net := decimal.Zero
	if s := strings.TrimSpace(c.NetAmount.String()); s == "" {
		reasons = append(reasons, "net_amount is required")
	} else if net, err = decimal.NewFromString(s); err != nil {
		reasons = append(reasons, fmt.Sprintf("net_amount %q is not a number", s))
	} else if net.IsNegative() {
		reasons = append(reasons, fmt.Sprintf("net_amount %s is negative", net.String()))
	}

	guestCount := 0
	if c.GuestCount != nil {
		n, err := c.GuestCount.Int64()
		if err != nil || n < 0 {
			reasons = append(reasons, fmt.Sprintf("guest_count %q is not a non-negative integer", c.GuestCount.String()))
		} else {
			guestCount = int(n)
		}
	}

	var eventTime *string
	if s := strings.TrimSpace(c.EventTime); s != "" {
		eventTime = &s
	}

	if len(reasons) > 0 {
		return invalid(reasons)
	}

	rec := &ValidatedRecord{
		ReservationNumber: int(resNum64),
		Edition:           int(edition64),
		EventDate:         eventDate,
		EventTime:         eventTime,
		GuestCount:        guestCount,
		NetAmount:         net,
		GrossAmount:       GrossFromNet(net, c.VatIncluded, vatRate),
		VatIncluded:       c.VatIncluded,
		Status:            status,
		ContactName:       strings.TrimSpace(c.ContactName),
		ContactEmail:      strings.TrimSpace(c.ContactEmail),
		Description:       strings.TrimSpace(c.Description),
		Paid:              c.Paid,
		InvoiceSent:       c.InvoiceSent,
	}

	if err := validate.Struct(rec); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, ve := range verrs {
				reasons = append(reasons, fmt.Sprintf("%s failed %s validation", ve.Field(), ve.Tag()))
			}
		} else {
			reasons = append(reasons, err.Error())
		}
		return invalid(reasons)
	}

	return Result{Record: rec}
}

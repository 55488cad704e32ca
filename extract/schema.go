package extract

import (
	"context"
	"encoding/json"
)

// CandidateFields is the raw extractor output. Everything here is untrusted
// until ValidateCandidate has produced a ValidatedRecord; numbers stay
// json.Number so a sloppy model response fails validation instead of the
// unmarshal.
type CandidateFields struct {
	ReservationNumber json.Number  `json:"reservation_number"`
	Edition           json.Number  `json:"edition"`
	EventDate         string       `json:"event_date"`
	EventTime         string       `json:"event_time"`
	GuestCount        *json.Number `json:"guest_count"`
	NetAmount         json.Number  `json:"net_amount"`
	VatIncluded       bool         `json:"vat_included"`
	Status            string       `json:"status"`
	ContactName       string       `json:"contact_name"`
	ContactEmail      string       `json:"contact_email"`
	Description       string       `json:"description"`
	Paid              bool         `json:"paid"`
	InvoiceSent       bool         `json:"invoice_sent"`
}

// TextExtractor converts a raw document (PDF bytes) into plain text.
// The concrete parser lives outside this service.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte) (string, error)
}

// FieldExtractor turns document text into candidate fields. The chat-model
// implementation is in openai.go; tests substitute fakes.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (CandidateFields, error)
}

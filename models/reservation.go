package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "Active"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
)

// Reservation is the persisted, authoritative record of one purchase-order
// lineage. There is at most one row per reservation_number; re-sends of the
// same order carry a higher edition. Paid / invoice_sent may be flipped by
// back-office users between pipeline runs, so callers must re-read before
// deciding anything.
type Reservation struct {
	ID                int               `gorm:"primary_key" json:"id"`
	ReservationNumber int               `gorm:"uniqueIndex;not null" json:"reservation_number" binding:"required"`
	Edition           int               `gorm:"not null;default:0" json:"edition"`
	EventDate         time.Time         `gorm:"not null" json:"event_date" binding:"required"`
	EventTime         *string           `gorm:"size:5;default:null" json:"event_time"`
	GuestCount        int               `gorm:"default:0" json:"guest_count"`
	NetAmount         decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	GrossAmount       decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"gross_amount"`
	VatIncluded       bool              `gorm:"not null;default:false" json:"vat_included"`
	Status            ReservationStatus `gorm:"type:enum('Active','Cancelled');not null;default:'Active'" json:"status"`
	ContactName       string            `gorm:"size:255;default:null" json:"contact_name"`
	ContactEmail      string            `gorm:"size:255;default:null" json:"contact_email"`
	Description       string            `gorm:"type:text;default:null" json:"description"`
	Paid              bool              `gorm:"not null;default:false" json:"paid"`
	InvoiceSent       bool              `gorm:"not null;default:false" json:"invoice_sent"`
	Version           int               `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Locked reports whether the financial lock is engaged. Once a reservation
// is paid or invoiced its financial fields are frozen; only the status can
// still move, via cancellation.
func (r Reservation) Locked() bool {
	return r.Paid || r.InvoiceSent
}

func (r Reservation) Cancelled() bool {
	return r.Status == ReservationStatusCancelled
}

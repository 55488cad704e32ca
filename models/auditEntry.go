package models

import (
	"time"
)

// AuditEntry is one immutable journal row per processed document. The
// journal is append-only: no update or delete path exists anywhere in the
// codebase, and journal_month partitions it by calendar month for export.
type AuditEntry struct {
	ID                int       `gorm:"primary_key" json:"id"`
	JournalMonth      string    `gorm:"size:7;index;not null" json:"journal_month"`
	RecordedAt        time.Time `gorm:"not null" json:"recorded_at"`
	ReservationNumber int       `gorm:"index;not null" json:"reservation_number"`
	Edition           int       `gorm:"not null;default:0" json:"edition"`
	Decision          Decision  `gorm:"type:enum('CREATE','UPDATE','SKIP_LOCKED','SKIP_DUPLICATE','SKIP_INVALID','CANCELLED_OVERRIDE');not null" json:"decision"`
	ChangedFields     string    `gorm:"type:text" json:"changed_fields"`
	Actor             string    `gorm:"size:100;not null" json:"actor"`
	Reason            string    `gorm:"size:255;default:null" json:"reason"`
	CorrelationId     string    `gorm:"size:64;default:null" json:"correlation_id"`
}

// JournalMonthOf formats the monthly partition key, e.g. "2026-09".
func JournalMonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

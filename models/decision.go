package models

// Decision is the deterministic outcome of merging one candidate against
// the prior persisted state of its reservation_number.
type Decision string

const (
	DecisionCreate            Decision = "CREATE"
	DecisionUpdate            Decision = "UPDATE"
	DecisionSkipLocked        Decision = "SKIP_LOCKED"
	DecisionSkipDuplicate     Decision = "SKIP_DUPLICATE"
	DecisionSkipInvalid       Decision = "SKIP_INVALID"
	DecisionCancelledOverride Decision = "CANCELLED_OVERRIDE"
)

// Mutates reports whether the decision writes to the store.
func (d Decision) Mutates() bool {
	switch d {
	case DecisionCreate, DecisionUpdate, DecisionCancelledOverride:
		return true
	}
	return false
}

// FieldChange is one entry of a changed-field diff. Old and New hold the
// string forms of the values; for SKIP_LOCKED they describe the attempted,
// not applied, change.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

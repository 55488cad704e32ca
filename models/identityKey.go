package models

import "fmt"

// IdentityKey identifies one reservation lineage. Re-sends of the same
// purchase order keep the reservation number and bump the edition.
type IdentityKey struct {
	ReservationNumber int `json:"reservation_number"`
	Edition           int `json:"edition"`
}

func (k IdentityKey) String() string {
	return fmt.Sprintf("%d/%d", k.ReservationNumber, k.Edition)
}

package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireReservationLock serializes writes per reservation number across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the reconciliation transaction.
func AcquireReservationLock(tx *gorm.DB, reservationNumber int) error {
	lockName := fmt.Sprintf("reservation:%d", reservationNumber)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire lock for reservation_number=%d", reservationNumber)
	}
	return nil
}

func ReleaseReservationLock(tx *gorm.DB, reservationNumber int) {
	lockName := fmt.Sprintf("reservation:%d", reservationNumber)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

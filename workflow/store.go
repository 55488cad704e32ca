package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// Store is the persistence capability the engine reconciles against.
// Get must return (nil, nil) for an absent reservation so callers can
// distinguish absence from store failure.
type Store interface {
	Get(ctx context.Context, reservationNumber int) (*models.Reservation, error)
	Upsert(ctx context.Context, rec *models.Reservation) error
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error

	// Transact runs fn serialized on the reservation number: no two
	// writers may interleave a read-modify-write on the same key. The
	// audit append and the upsert commit or roll back together.
	Transact(ctx context.Context, reservationNumber int, fn func(tx Store) error) error
}

// GormStore is the MySQL-backed Store. It also serves the digest path's
// read-only listing, which sits outside the Store capability.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, reservationNumber int) (*models.Reservation, error) {
	var rec models.Reservation
	err := s.db.WithContext(ctx).
		Where("reservation_number = ?", reservationNumber).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (s *GormStore) Upsert(ctx context.Context, rec *models.Reservation) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		// A duplicate key on reservation_number means a concurrent writer
		// created the row after our pre-lock read. Deferring the document
		// lets the next run reconcile against the now-present record.
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("%w: concurrent create of reservation %d", utils.ErrStoreUnavailable, rec.ReservationNumber)
		}
		return fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *GormStore) Transact(ctx context.Context, reservationNumber int, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireReservationLock(tx, reservationNumber); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err)
		}
		defer ReleaseReservationLock(tx, reservationNumber)
		return fn(&GormStore{db: tx})
	})
}

// ListUpcoming returns non-cancelled reservations whose event date falls in
// [from, to], ordered for the digest.
func (s *GormStore) ListUpcoming(ctx context.Context, from, to time.Time) ([]models.Reservation, error) {
	var recs []models.Reservation
	err := s.db.WithContext(ctx).
		Where("status <> ?", models.ReservationStatusCancelled).
		Where("event_date BETWEEN ? AND ?", from, to).
		Order("event_date, event_time").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStoreUnavailable, err)
	}
	return recs, nil
}

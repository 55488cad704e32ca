package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// ReservationLister is the read capability the digest path needs.
type ReservationLister interface {
	ListUpcoming(ctx context.Context, from, to time.Time) ([]models.Reservation, error)
}

// BuildDigest selects the reservations happening today or tomorrow in the
// given timezone, cancelled ones excluded, sorted by event date then time.
// The digest holds no state of its own: it is recomputed fresh per call.
func BuildDigest(records []models.Reservation, now time.Time, loc *time.Location) []models.Reservation {
	localNow := now.In(loc)
	today := localNow.Format("2006-01-02")
	tomorrow := localNow.AddDate(0, 0, 1).Format("2006-01-02")

	var rows []models.Reservation
	for _, rec := range records {
		if rec.Cancelled() {
			continue
		}
		day := rec.EventDate.Format("2006-01-02")
		if day != today && day != tomorrow {
			continue
		}
		rows = append(rows, rec)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		di := rows[i].EventDate.Format("2006-01-02")
		dj := rows[j].EventDate.Format("2006-01-02")
		if di != dj {
			return di < dj
		}
		ti, tj := "", ""
		if rows[i].EventTime != nil {
			ti = *rows[i].EventTime
		}
		if rows[j].EventTime != nil {
			tj = *rows[j].EventTime
		}
		return ti < tj
	})
	return rows
}

// SendDailyDigest queries upcoming reservations, builds the digest and
// emits one DIGEST event. A redis lock keyed on the digest date keeps
// multiple instances from double-sending; when redis is absent we proceed,
// delivery being best-effort anyway.
func SendDailyDigest(ctx context.Context, logger *logrus.Logger, lister ReservationLister, notifier Notifier, now time.Time, loc *time.Location) error {
	localNow := now.In(loc)

	if locker := config.GetRedisLock(); locker != nil {
		lockKey := fmt.Sprintf("digest:%s", localNow.Format("2006-01-02"))
		lock, err := locker.Obtain(ctx, lockKey, 10*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			logger.WithFields(logrus.Fields{
				"module": "notify",
				"event":  "digest_skipped",
			}).Info("digest already sent for " + localNow.Format("2006-01-02"))
			return nil
		} else if err != nil {
			config.LogError(logger, "digest.go", "SendDailyDigest", "Obtaining digest lock", lockKey, err)
		} else {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	from := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	records, err := lister.ListUpcoming(ctx, from, to)
	if err != nil {
		return err
	}

	rows := BuildDigest(records, now, loc)
	if len(rows) == 0 {
		config.LogPipelineEvent(logger, "notify", "digest_empty", 0, 0, "")
		return nil
	}

	if err := notifier.Send(ctx, Event{Kind: EventKindDigest, Digest: rows}); err != nil {
		config.LogError(logger, "digest.go", "SendDailyDigest", "Sending digest event", len(rows), err)
		return err
	}
	config.LogPipelineEvent(logger, "notify", "digest_sent", 0, 0, fmt.Sprintf("%d rows", len(rows)))
	return nil
}

package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AttemptRepository records every execution attempt against a planned
// order (submission, rejection, cancellation) for audit purposes.
type AttemptRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewAttemptRepository(db *sql.DB, log zerolog.Logger) *AttemptRepository {
	return &AttemptRepository{db: db, log: log.With().Str("repo", "order_attempt").Logger()}
}

// Record appends one OrderAttempts row.
func (r *AttemptRepository) Record(plannedOrderID int64, attemptType string, fillProbability float64, accountNumber string) error {
	_, err := r.db.Exec(
		`INSERT INTO order_attempts (planned_order_id, attempt_ts, attempt_type, fill_probability, account_number)
		 VALUES (?, ?, ?, ?, ?)`,
		plannedOrderID, time.Now().UTC().Format(time.RFC3339), attemptType, fillProbability, nullString(accountNumber),
	)
	if err != nil {
		return fmt.Errorf("failed to record order attempt: %w", err)
	}
	return nil
}

// CountToday returns the number of attempts recorded for plannedOrderID
// since the start of the current UTC day.
func (r *AttemptRepository) CountToday(plannedOrderID int64, now time.Time) (int, error) {
	utcNow := now.UTC()
	startOfDay := time.Date(utcNow.Year(), utcNow.Month(), utcNow.Day(), 0, 0, 0, 0, time.UTC)
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM order_attempts WHERE planned_order_id = ? AND attempt_ts >= ?`,
		plannedOrderID, startOfDay.Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

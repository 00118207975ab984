package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// LabelRepository persists OrderLabels. (planned_order_id, label_type) is
// unique; Upsert is idempotent per base §8 "Labeling is idempotent".
type LabelRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewLabelRepository(db *sql.DB, log zerolog.Logger) *LabelRepository {
	return &LabelRepository{db: db, log: log.With().Str("repo", "order_label").Logger()}
}

// Upsert writes or overwrites a label, never creating a second row for the
// same (planned_order_id, label_type) pair.
func (r *LabelRepository) Upsert(label *domain.OrderLabel) error {
	_, err := r.db.Exec(
		`INSERT INTO order_labels (planned_order_id, label_type, label_value, computed_at, notes)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(planned_order_id, label_type) DO UPDATE SET
			label_value = excluded.label_value,
			computed_at = excluded.computed_at,
			notes = excluded.notes`,
		label.PlannedOrderID, string(label.LabelType), label.LabelValue,
		label.ComputedAt.Format(time.RFC3339), nullString(label.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order label: %w", err)
	}
	return nil
}

// Exists reports whether a label already exists for the given key, letting
// the labeling service skip recomputation when it chooses to.
func (r *LabelRepository) Exists(plannedOrderID int64, labelType domain.LabelType) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM order_labels WHERE planned_order_id = ? AND label_type = ?`,
		plannedOrderID, string(labelType),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check label existence: %w", err)
	}
	return count > 0, nil
}

// GetByPlannedOrder returns every label computed for a planned order.
func (r *LabelRepository) GetByPlannedOrder(plannedOrderID int64) ([]*domain.OrderLabel, error) {
	rows, err := r.db.Query(
		`SELECT planned_order_id, label_type, label_value, computed_at, notes
		 FROM order_labels WHERE planned_order_id = ?`, plannedOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order labels: %w", err)
	}
	defer rows.Close()

	var out []*domain.OrderLabel
	for rows.Next() {
		var l domain.OrderLabel
		var labelType, computedAt string
		var notes sql.NullString
		if err := rows.Scan(&l.PlannedOrderID, &labelType, &l.LabelValue, &computedAt, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan order label: %w", err)
		}
		l.LabelType = domain.LabelType(labelType)
		l.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)
		l.Notes = notes.String
		out = append(out, &l)
	}
	return out, rows.Err()
}

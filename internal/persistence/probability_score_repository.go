package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ProbabilityScoreRepository persists per-evaluation fill-probability scores
// with their feature map, for offline analysis (base §4.2). The feature map
// is encoded with msgpack rather than JSON: it is write-heavy, read rarely,
// and benefits from msgpack's denser binary representation of the mixed
// string/float/int feature values.
type ProbabilityScoreRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewProbabilityScoreRepository(db *sql.DB, log zerolog.Logger) *ProbabilityScoreRepository {
	return &ProbabilityScoreRepository{db: db, log: log.With().Str("repo", "probability_score").Logger()}
}

// Create persists one ProbabilityScore evaluation.
func (r *ProbabilityScoreRepository) Create(score *domain.ProbabilityScore) error {
	encoded, err := msgpack.Marshal(score.Features)
	if err != nil {
		return fmt.Errorf("failed to encode feature map: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO probability_scores (planned_order_id, timestamp, fill_probability, features)
		 VALUES (?, ?, ?, ?)`,
		score.PlannedOrderID, score.Timestamp.Format(time.RFC3339), score.FillProbability, encoded,
	)
	if err != nil {
		return fmt.Errorf("failed to insert probability score: %w", err)
	}
	return nil
}

// GetLatestByPlannedOrder returns the most recent score for a planned order, if any.
func (r *ProbabilityScoreRepository) GetLatestByPlannedOrder(plannedOrderID int64) (*domain.ProbabilityScore, error) {
	row := r.db.QueryRow(
		`SELECT planned_order_id, timestamp, fill_probability, features
		 FROM probability_scores WHERE planned_order_id = ? ORDER BY id DESC LIMIT 1`,
		plannedOrderID,
	)

	var score domain.ProbabilityScore
	var ts string
	var encoded []byte
	err := row.Scan(&score.PlannedOrderID, &ts, &score.FillProbability, &encoded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan probability score: %w", err)
	}
	score.Timestamp, _ = time.Parse(time.RFC3339, ts)
	if len(encoded) > 0 {
		if err := msgpack.Unmarshal(encoded, &score.Features); err != nil {
			return nil, fmt.Errorf("failed to decode feature map: %w", err)
		}
	}
	return &score, nil
}

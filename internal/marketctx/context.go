// Package marketctx provides the two optional prioritization collaborators
// of base §4.4 — MarketContext and SetupPerformance — backed by the
// currently loaded order set and the persisted label history respectively.
// Grounded on the risk package's mutex-guarded cache-with-TTL idiom
// (internal/risk/halt.go) and the label repository's raw SQL query style
// (internal/persistence/label_repository.go).
package marketctx

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/prioritization"
	"github.com/rs/zerolog"
)

// statsCacheTTL bounds how often Stats recomputes from the database; the
// setup-performance table changes slowly (only on position close) so a
// short cache avoids a query per candidate per tick.
const statsCacheTTL = 5 * time.Minute

// compatibleTimeframes maps each recognized core_timeframe to the set of
// adjacent timeframes base §4.4 scores at the partial-match weight (0.7)
// rather than full match (1.0) or mismatch (0.3).
var compatibleTimeframes = map[string][]string{
	"1m":  {"5m", "15m"},
	"5m":  {"1m", "15m"},
	"15m": {"5m", "1h"},
	"1h":  {"15m", "4h"},
	"4h":  {"1h", "1d"},
	"1d":  {"4h", "1w"},
	"1w":  {"1d"},
}

// Tracker is a MarketContext implementation fed by the trading manager's
// tick: it tallies core_timeframe across the currently loaded planned-order
// set and reports whichever timeframe is most common.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewTracker constructs an empty timeframe tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]int)}
}

// Update replaces the tracked timeframe tally with the distribution observed
// in orders. Called once per tick by the trading manager before scoring.
func (t *Tracker) Update(orders []*domain.PlannedOrder) {
	counts := make(map[string]int, len(orders))
	for _, o := range orders {
		if o.CoreTimeframe == "" {
			continue
		}
		counts[o.CoreTimeframe]++
	}
	t.mu.Lock()
	t.counts = counts
	t.mu.Unlock()
}

// DominantTimeframe reports the most frequently observed core_timeframe, or
// ok=false if no orders carry one.
func (t *Tracker) DominantTimeframe() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best string
	var bestCount int
	for tf, n := range t.counts {
		if n > bestCount {
			best, bestCount = tf, n
		}
	}
	return best, bestCount > 0
}

// CompatibleTimeframes reports the timeframes adjacent to dominant.
func (t *Tracker) CompatibleTimeframes(dominant string) []string {
	return compatibleTimeframes[dominant]
}

// SetupStore is a SetupPerformance implementation backed by the
// order_labels/planned_orders join: win rate and profit factor computed
// from each setup's persisted LabelProfitability history.
type SetupStore struct {
	db  *sql.DB
	log zerolog.Logger

	mu       sync.Mutex
	cachedAt time.Time
	cache    map[string]setupStats
}

type setupStats struct {
	tradeCount   int
	winRate      float64
	profitFactor float64
}

// NewSetupStore constructs a setup-performance lookup bound to db.
func NewSetupStore(db *sql.DB, log zerolog.Logger) *SetupStore {
	return &SetupStore{
		db:  db,
		log: log.With().Str("component", "setup_performance").Logger(),
	}
}

// Stats satisfies prioritization.SetupPerformance: trade count, win rate and
// profit factor for setup, refreshing the cached aggregate if it is older
// than statsCacheTTL.
func (s *SetupStore) Stats(setup string) (prioritization.SetupStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.cachedAt) >= statsCacheTTL || s.cache == nil {
		fresh, err := s.loadAll()
		if err != nil {
			s.log.Error().Err(err).Msg("failed to refresh setup performance cache; serving stale data")
		} else {
			s.cache = fresh
			s.cachedAt = time.Now()
		}
	}

	stats, found := s.cache[setup]
	if !found {
		return prioritization.SetupStats{}, false
	}
	return prioritization.SetupStats{
		TradeCount:   stats.tradeCount,
		WinRate:      stats.winRate,
		ProfitFactor: stats.profitFactor,
	}, true
}

// loadAll aggregates every trading_setup's profitability history in one
// query: trade count, win rate (fraction of positive labels), and profit
// factor (sum of gains over absolute sum of losses).
func (s *SetupStore) loadAll() (map[string]setupStats, error) {
	rows, err := s.db.Query(
		`SELECT p.trading_setup, l.label_value
		 FROM order_labels l
		 JOIN planned_orders p ON p.id = l.planned_order_id
		 WHERE l.label_type = ? AND p.trading_setup IS NOT NULL AND p.trading_setup != ''`,
		string(domain.LabelProfitability),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query setup profitability history: %w", err)
	}
	defer rows.Close()

	type accum struct {
		count  int
		wins   int
		gains  float64
		losses float64
	}
	accums := make(map[string]*accum)

	for rows.Next() {
		var setup string
		var value float64
		if err := rows.Scan(&setup, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setup profitability row: %w", err)
		}
		a, ok := accums[setup]
		if !ok {
			a = &accum{}
			accums[setup] = a
		}
		a.count++
		if value > 0 {
			a.wins++
			a.gains += value
		} else if value < 0 {
			a.losses += -value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate setup profitability rows: %w", err)
	}

	out := make(map[string]setupStats, len(accums))
	for setup, a := range accums {
		pf := 0.0
		switch {
		case a.losses > 0:
			pf = a.gains / a.losses
		case a.gains > 0:
			pf = 5.0 // no losses on record; cap rather than report +Inf
		}
		out[setup] = setupStats{
			tradeCount:   a.count,
			winRate:      float64(a.wins) / float64(a.count),
			profitFactor: pf,
		}
	}
	return out, nil
}

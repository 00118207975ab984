package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// placeholderRiskPerTrade and placeholderRiskRewardRatio are the defaults
// applied when materializing a broker-discovered order into a PlannedOrder.
// Per the Design Notes open question, the source's broker-order conversion
// uses placeholder defaults and is treated as an audit-logging path only:
// these orders are included in the tick's merged list (so prioritization and
// risk can see broker reality) but are never persisted as new durable rows,
// so they never get resumed as internal live orders across restarts.
var (
	placeholderRiskPerTrade    = decimal.NewFromFloat(0.01)
	placeholderRiskRewardRatio = decimal.NewFromFloat(2.0)
)

// dbResumableStatuses are the PlannedOrder statuses the database-resumption
// source reloads at startup/each tick (base §4.1).
var dbResumableStatuses = []domain.OrderStatus{domain.StatusPending, domain.StatusLive, domain.StatusLiveWorking}

// Orchestrator merges orders from the spreadsheet, the database, and
// broker-discovered working orders into one deduplicated list per tick.
type Orchestrator struct {
	plannedRepo *persistence.PlannedOrderRepository
	sheet       *SpreadsheetSource
	broker      domain.BrokerClient
	log         zerolog.Logger
}

// New constructs an orchestrator. sheet and broker may be nil to disable
// that source, per base §4.1 "path to spreadsheet (optional), broker handle
// (optional)".
func New(plannedRepo *persistence.PlannedOrderRepository, sheet *SpreadsheetSource, broker domain.BrokerClient, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		plannedRepo: plannedRepo,
		sheet:       sheet,
		broker:      broker,
		log:         log.With().Str("component", "loading_orchestrator").Logger(),
	}
}

// conflictEntry tracks one bucket of the merge, remembering which source
// priority and import time won so later, lower-priority contributions can be
// rejected with a logged audit trail.
type conflictEntry struct {
	order        *domain.PlannedOrder
	sourcePriority int
	importedAt   time.Time
}

// Source priorities: higher wins on conflict (base §4.1).
const (
	priorityBroker   = 3
	priorityDatabase = 2
	prioritySheet    = 1
)

// Load produces the deduplicated, ordered list of PlannedOrders for this
// tick. Failure of one source never prevents the others from contributing.
func (o *Orchestrator) Load(ctx context.Context, spreadsheetPath string, now time.Time) []*domain.PlannedOrder {
	buckets := make(map[string]*conflictEntry)

	if dbOrders, err := o.loadFromDatabase(now); err != nil {
		o.log.Error().Err(err).Msg("database resumption source failed; contributing nothing this tick")
	} else {
		o.merge(buckets, dbOrders, priorityDatabase)
	}

	if o.sheet != nil && spreadsheetPath != "" {
		if sheetOrders, rowErrs, err := o.sheet.Load(spreadsheetPath); err != nil {
			o.log.Error().Err(err).Msg("spreadsheet source failed; contributing nothing this tick")
		} else {
			for _, re := range rowErrs {
				o.log.Warn().Int("row", re.Row).Err(re.Err).Msg("skipped invalid spreadsheet row")
			}
			sheetOrders = o.dedupeAgainstDB(sheetOrders)
			o.merge(buckets, sheetOrders, prioritySheet)
		}
	}

	if o.broker != nil {
		if brokerOrders, err := o.loadFromBroker(ctx); err != nil {
			o.log.Error().Err(err).Msg("broker discovery source failed; contributing nothing this tick")
		} else {
			o.merge(buckets, brokerOrders, priorityBroker)
		}
	}

	out := make([]*domain.PlannedOrder, 0, len(buckets))
	for _, entry := range buckets {
		out = append(out, entry.order)
	}
	return out
}

// loadFromDatabase loads PENDING/LIVE/LIVE_WORKING rows and drops
// cross-session orders whose strategy has expired.
func (o *Orchestrator) loadFromDatabase(now time.Time) ([]*domain.PlannedOrder, error) {
	rows, err := o.plannedRepo.GetByStatuses(dbResumableStatuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to load resumable planned orders: %w", err)
	}

	var kept []*domain.PlannedOrder
	for _, p := range rows {
		switch p.PositionStrategy {
		case domain.StrategyDay:
			if p.CreatedAt.Before(startOfDay(now)) {
				continue
			}
		case domain.StrategyHybrid:
			if p.IsHybridExpired(now) {
				continue
			}
		}
		kept = append(kept, p)
	}
	return kept, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dedupeAgainstDB drops spreadsheet rows already present in the database
// with an identical (symbol, entry, stop, action), and drops rows that
// duplicate another already-valid row in this same batch by natural key.
func (o *Orchestrator) dedupeAgainstDB(rows []*domain.PlannedOrder) []*domain.PlannedOrder {
	seen := make(map[string]bool)
	var out []*domain.PlannedOrder
	for _, p := range rows {
		key := p.NaturalKey()
		if seen[key] {
			o.log.Debug().Str("natural_key", key).Msg("skipping duplicate spreadsheet row within batch")
			continue
		}
		existing, err := o.plannedRepo.FindByNaturalKey(p.Symbol, p.Action, p.EntryPrice, p.StopLoss)
		if err != nil {
			o.log.Warn().Err(err).Str("natural_key", key).Msg("failed to check spreadsheet row against database; including it anyway")
		} else if existing != nil {
			o.log.Debug().Str("natural_key", key).Msg("skipping spreadsheet row already present in database")
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// loadFromBroker attempts to materialize broker-discovered working orders
// that look like they originated from this system: they carry a parent_id,
// their order type is LMT or STP, and nothing has been filled yet
// (remaining quantity equals total quantity).
func (o *Orchestrator) loadFromBroker(ctx context.Context) ([]*domain.PlannedOrder, error) {
	openOrders, err := o.broker.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch broker open orders: %w", err)
	}

	now := time.Now().UTC()
	var out []*domain.PlannedOrder
	for _, bo := range openOrders {
		if bo.ParentID == "" {
			continue
		}
		if bo.OrderType != domain.OrderTypeLimit && bo.OrderType != domain.OrderTypeStop {
			continue
		}
		if bo.RemainingQuantity != bo.TotalQuantity {
			continue
		}

		entry := bo.LimitPrice
		if entry.IsZero() {
			entry = bo.AuxPrice
		}

		existing, err := o.plannedRepo.FindByNaturalKey(bo.Symbol, bo.Action, entry, decimal.Zero)
		if err == nil && existing != nil {
			continue
		}

		candidate := &domain.PlannedOrder{
			Symbol:           bo.Symbol,
			SecurityType:     domain.SecurityStock,
			Action:           bo.Action,
			OrderType:        bo.OrderType,
			EntryPrice:       entry,
			RiskPerTrade:     placeholderRiskPerTrade,
			RiskRewardRatio:  placeholderRiskRewardRatio,
			Priority:         3,
			PositionStrategy: domain.StrategyCore,
			Status:           domain.StatusLiveWorking,
			StatusReason:     "broker-discovered order, audit-logging only",
			CreatedAt:        now,
			ImportedAt:       now,
			BrokerOrderIDs:   []string{bo.OrderID},
		}

		o.log.Info().
			Str("symbol", bo.Symbol).
			Str("broker_order_id", bo.OrderID).
			Msg("materialized broker-discovered order for this tick (not persisted)")

		out = append(out, candidate)
	}
	return out, nil
}

// merge folds newOrders into buckets, keyed by natural key, applying source
// priority and then most-recent-import-time as the tie-breakers. Every
// rejected contribution is logged for audit.
func (o *Orchestrator) merge(buckets map[string]*conflictEntry, newOrders []*domain.PlannedOrder, sourcePriority int) {
	for _, p := range newOrders {
		key := p.NaturalKey()
		existing, ok := buckets[key]
		if !ok {
			buckets[key] = &conflictEntry{order: p, sourcePriority: sourcePriority, importedAt: p.ImportedAt}
			continue
		}

		if sourcePriority > existing.sourcePriority {
			o.log.Debug().Str("natural_key", key).Msg("higher-priority source overrides existing contribution")
			buckets[key] = &conflictEntry{order: p, sourcePriority: sourcePriority, importedAt: p.ImportedAt}
			continue
		}
		if sourcePriority < existing.sourcePriority {
			o.log.Debug().Str("natural_key", key).Msg("lower-priority contribution dropped in favor of existing")
			continue
		}
		// Equal priority: prefer the more recent import timestamp, else keep the first seen.
		if p.ImportedAt.After(existing.importedAt) {
			o.log.Debug().Str("natural_key", key).Msg("more recently imported contribution overrides existing one of equal priority")
			buckets[key] = &conflictEntry{order: p, sourcePriority: sourcePriority, importedAt: p.ImportedAt}
		} else {
			o.log.Debug().Str("natural_key", key).Msg("equal-priority contribution dropped in favor of existing")
		}
	}
}

// Package manager assembles every component of the trading engine and
// drives the per-tick pipeline described by base §4: load orders, score
// probability, size, prioritize/allocate, gate on risk, submit through the
// bracket-aware execution orchestrator, and let the state service fan the
// resulting transitions out to labeling and reconciliation.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/activeorders"
	"github.com/robinmaple/trading-automation-sub001/internal/backup"
	"github.com/robinmaple/trading-automation-sub001/internal/bracket"
	"github.com/robinmaple/trading-automation-sub001/internal/broker"
	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/database"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/eod"
	"github.com/robinmaple/trading-automation-sub001/internal/events"
	"github.com/robinmaple/trading-automation-sub001/internal/execution"
	"github.com/robinmaple/trading-automation-sub001/internal/feed"
	"github.com/robinmaple/trading-automation-sub001/internal/httpapi"
	"github.com/robinmaple/trading-automation-sub001/internal/labeling"
	"github.com/robinmaple/trading-automation-sub001/internal/loader"
	"github.com/robinmaple/trading-automation-sub001/internal/marketctx"
	"github.com/robinmaple/trading-automation-sub001/internal/monitoring"
	"github.com/robinmaple/trading-automation-sub001/internal/persistence"
	"github.com/robinmaple/trading-automation-sub001/internal/prioritization"
	"github.com/robinmaple/trading-automation-sub001/internal/probability"
	"github.com/robinmaple/trading-automation-sub001/internal/reconciliation"
	"github.com/robinmaple/trading-automation-sub001/internal/risk"
	"github.com/robinmaple/trading-automation-sub001/internal/sizing"
	"github.com/robinmaple/trading-automation-sub001/internal/stateservice"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Manager owns every long-lived component and the tick pipeline that ties
// them together. It is the composition root: cmd/ constructs exactly one.
type Manager struct {
	cfg *config.Config
	log zerolog.Logger

	db   *database.DB
	bus  *events.Bus
	feed domain.DataFeed

	broker domain.BrokerClient

	plannedRepo     *persistence.PlannedOrderRepository
	executedRepo    *persistence.ExecutedOrderRepository
	labelRepo       *persistence.LabelRepository
	probabilityRepo *persistence.ProbabilityScoreRepository
	attemptRepo     *persistence.AttemptRepository

	state          *stateservice.Service
	loaderOrch     *loader.Orchestrator
	probEngine     *probability.Engine
	sizer          *sizing.Sizer
	market         *marketctx.Tracker
	setups         *marketctx.SetupStore
	prioritization *prioritization.Service
	riskSvc        *risk.Service
	execOrch       *execution.Orchestrator
	bracketMgr     *bracket.Manager
	active         *activeorders.Store
	labelingSvc    *labeling.Service
	eodSvc         *eod.Service
	eodScheduler   *eod.DailyResetScheduler
	reconEngine    *reconciliation.Engine
	monitoringSvc  *monitoring.Service
	httpServer     *httpapi.Server
	backupSvc      *backup.Service
}

// New wires every component from cfg. db is opened and migrated; every
// other collaborator is constructed but not started (see Start).
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Manager, error) {
	db, err := database.New(database.Config{Path: cfg.DatabasePath, Profile: database.ProfileStandard})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	bus := events.NewBus(log)
	conn := db.Conn()

	plannedRepo := persistence.NewPlannedOrderRepository(conn, log)
	executedRepo := persistence.NewExecutedOrderRepository(conn, log)
	labelRepo := persistence.NewLabelRepository(conn, log)
	probabilityRepo := persistence.NewProbabilityScoreRepository(conn, log)
	attemptRepo := persistence.NewAttemptRepository(conn, log)

	state := stateservice.New(plannedRepo, executedRepo, bus, log)

	sheet := loader.NewSpreadsheetSource(cfg.OrderDefaults)

	var brokerClient domain.BrokerClient = broker.New(cfg.BrokerAccountNumber, decimal.NewFromFloat(cfg.Simulation.DefaultEquity))

	var dataFeed domain.DataFeed
	if cfg.DataFeedURL != "" {
		wsFeed := feed.New(cfg.DataFeedURL, log)
		dataFeed = wsFeed
	}

	loaderOrch := loader.New(plannedRepo, sheet, brokerClient, log)
	probEngine := probability.NewEngine(probability.NewReferenceScorer(), probabilityRepo, log)
	sizer := sizing.New(cfg.RiskLimits)

	market := marketctx.NewTracker()
	setups := marketctx.NewSetupStore(conn, log)
	prioritizationSvc := prioritization.New(cfg.Prioritization, market, setups, log)

	riskSvc := risk.New(cfg.RiskLimits, executedRepo, log)

	active := activeorders.New()
	execOrch := execution.New(brokerClient, sizer, plannedRepo, executedRepo, state, active, cfg, log)
	bracketMgr := bracket.New(execOrch, log)

	labelingSvc := labeling.New(plannedRepo, executedRepo, labelRepo, probabilityRepo, log)
	labelingSvc.Subscribe(bus)

	eodSvc := eod.New(cfg.EndOfDay, executedRepo, plannedRepo, state, brokerClient, dataFeed, labelingSvc, log)
	eodScheduler := eod.NewDailyResetScheduler(log)

	reconEngine := reconciliation.New(
		brokerClient, plannedRepo, executedRepo, active, state,
		time.Duration(cfg.Reconciliation.IntervalSeconds)*time.Second,
		cfg.Reconciliation.MaxConsecutiveErrors,
		cfg.Reconciliation.PriceMatchTolerance,
		log,
	)

	monitoringSvc := monitoring.New(dataFeed, cfg.Monitoring, log)

	m := &Manager{
		cfg: cfg, log: log.With().Str("component", "trading_manager").Logger(),
		db: db, bus: bus, feed: dataFeed, broker: brokerClient,
		plannedRepo: plannedRepo, executedRepo: executedRepo, labelRepo: labelRepo,
		probabilityRepo: probabilityRepo, attemptRepo: attemptRepo,
		state: state, loaderOrch: loaderOrch, probEngine: probEngine, sizer: sizer,
		market: market, setups: setups, prioritization: prioritizationSvc, riskSvc: riskSvc,
		execOrch: execOrch, bracketMgr: bracketMgr, active: active,
		labelingSvc: labelingSvc, eodSvc: eodSvc, eodScheduler: eodScheduler,
		reconEngine: reconEngine, monitoringSvc: monitoringSvc,
	}

	m.httpServer = httpapi.New(cfg.HTTPAddr, httpapi.Dependencies{
		Active:         active,
		RiskService:    riskSvc,
		Reconciliation: reconEngine,
		Monitoring:     monitoringSvc,
		AccountNumber:  cfg.BrokerAccountNumber,
	}, log)

	if cfg.BackupEnabled && cfg.BackupS3Bucket != "" {
		backupSvc, err := backup.New(ctx, db, cfg.BackupS3Bucket, cfg.BackupS3Prefix, cfg.BackupStagingDir, cfg.BackupInterval(), log)
		if err != nil {
			m.log.Warn().Err(err).Msg("backup service disabled: failed to initialize S3 uploader")
		} else {
			m.backupSvc = backupSvc
		}
	}

	return m, nil
}

// Start launches every long-lived worker: the data feed, monitoring pump,
// reconciliation loop, EOD scheduler, status HTTP server, and (if enabled)
// the backup loop. It returns once everything has been kicked off; workers
// run in background goroutines until Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	if m.feed != nil {
		if wsFeed, ok := m.feed.(*feed.WebsocketFeed); ok {
			wsFeed.Start()
		}
	}

	m.reconEngine.Start(ctx)
	if err := m.eodScheduler.Start(m.cfg.EndOfDay.DailyResetCron, m.eodSvc); err != nil {
		m.log.Warn().Err(err).Msg("failed to start EOD daily reset scheduler")
	}
	m.monitoringSvc.Start(ctx, m.tick, m.runLabelWindow)

	if m.backupSvc != nil {
		m.backupSvc.Start(ctx)
	}

	go func() {
		if err := m.httpServer.ListenAndServe(); err != nil {
			m.log.Info().Err(err).Msg("status http server stopped")
		}
	}()

	m.log.Info().Msg("trading manager started")
	return nil
}

// Stop shuts down every worker in reverse order, bounding the HTTP server's
// shutdown to 5 seconds.
func (m *Manager) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.httpServer.Shutdown(shutdownCtx)

	if m.backupSvc != nil {
		m.backupSvc.Stop()
	}
	m.monitoringSvc.Stop()
	m.eodScheduler.Stop()
	m.reconEngine.Stop()

	if m.feed != nil {
		if wsFeed, ok := m.feed.(*feed.WebsocketFeed); ok {
			wsFeed.Stop()
		}
	}

	_ = m.db.Close()
	m.log.Info().Msg("trading manager stopped")
}

// tick runs one full pass of the pipeline: load -> subscribe -> reconcile
// exits -> score -> size -> prioritize/allocate -> risk-gate -> submit.
// It is the CheckFunc handed to the monitoring pump.
func (m *Manager) tick(ctx context.Context) error {
	now := time.Now()

	orders := m.loaderOrch.Load(ctx, m.cfg.SpreadsheetPath, now)
	m.market.Update(orders)
	m.monitoringSvc.SubscribeOrders(ctx, orders)

	m.reconcileClosedPositions(ctx, now)

	equity, err := m.broker.GetAccountValue(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve account equity: %w", err)
	}

	pending := make([]*domain.PlannedOrder, 0, len(orders))
	for _, o := range orders {
		if o.Status == domain.StatusPending {
			pending = append(pending, o)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	candidates := make([]prioritization.Candidate, 0, len(pending))
	fillProbabilities := make(map[int64]float64, len(pending))
	for _, o := range pending {
		quote, _ := m.feedQuote(o.Symbol)
		fillProbability, _ := m.probEngine.Evaluate(o, quote, now)
		fillProbabilities[o.ID] = fillProbability

		sized, err := m.sizer.Resolve(o, equity)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", o.Symbol).Msg("skipping order: sizing failed")
			continue
		}
		candidates = append(candidates, prioritization.Candidate{
			Order:             o,
			Quantity:          sized.Quantity,
			CapitalCommitment: sized.CapitalCommitment,
		})
	}

	alreadyCommitted := m.committedCapital()
	allocated := m.prioritization.Allocate(
		ctx, candidates,
		m.cfg.RiskLimits.MaxOpenOrders, m.active.CountWorking(),
		equity, m.cfg.RiskLimits.MaxCapitalUtilization, alreadyCommitted,
	)

	for _, a := range allocated {
		if !a.Allocated {
			continue
		}
		m.submitAllocated(ctx, a, fillProbabilities[a.Order.ID], equity, now)
	}

	return nil
}

// submitAllocated runs the risk gate and, if it passes, hands the candidate
// to the bracket manager for capital-pool-aware submission.
func (m *Manager) submitAllocated(ctx context.Context, a prioritization.Allocated, fillProbability float64, equity decimal.Decimal, now time.Time) {
	order := a.Order
	isCoreOrHybrid := order.PositionStrategy == domain.StrategyCore || order.PositionStrategy == domain.StrategyHybrid

	decision := m.riskSvc.CanPlaceOrder(
		m.broker.AccountNumber(), order.RiskPerTrade, equity, isCoreOrHybrid,
		a.CapitalCommitment, risk.WorkingExposure{CoreHybridCommitted: m.committedCapital()}, now,
	)
	if !decision.Allowed {
		if _, err := m.state.UpdatePlannedOrderState(order, domain.StatusCancelled, decision.Reason, "risk_management"); err != nil {
			m.log.Error().Err(err).Int64("planned_order_id", order.ID).Msg("failed to cancel order rejected by risk gate")
		}
		return
	}

	totalCapital := equity.Mul(decimal.NewFromFloat(m.cfg.RiskLimits.MaxCapitalUtilization))
	if _, err := m.bracketMgr.AddOrder(ctx, order, fillProbability, a.CapitalCommitment, totalCapital, now); err != nil {
		m.log.Error().Err(err).Str("symbol", order.Symbol).Msg("bracket submission failed")
	}
}

// reconcileClosedPositions scans tracked active orders for ones whose
// executed order has since closed (filled bracket leg hit, EOD close, or
// manual liquidation) and frees their bracket capital pool, per base §4.7
// "capital frees up once its order fills or is closed".
func (m *Manager) reconcileClosedPositions(ctx context.Context, now time.Time) {
	openPositions, err := m.executedRepo.GetAllOpenPositions()
	if err != nil {
		m.log.Error().Err(err).Msg("failed to enumerate open positions during capital-pool reconciliation")
		return
	}
	stillOpen := make(map[int64]bool, len(openPositions))
	for _, p := range openPositions {
		stillOpen[p.PlannedOrderID] = true
	}

	for _, a := range m.active.All() {
		if a.Planned == nil || stillOpen[a.Planned.ID] {
			continue
		}
		m.active.Remove(a.NaturalKey())
		m.bracketMgr.HandleExit(ctx, a.Planned, a.CapitalCommitment, "position closed", now)
	}
}

// committedCapital sums capital currently committed by working active orders.
func (m *Manager) committedCapital() decimal.Decimal {
	total := decimal.Zero
	for _, a := range m.active.All() {
		if a.Status.IsWorking() {
			total = total.Add(a.CapitalCommitment)
		}
	}
	return total
}

func (m *Manager) feedQuote(symbol string) (*domain.Quote, bool) {
	if m.feed == nil {
		return nil, false
	}
	return m.feed.GetCurrentPrice(symbol)
}

// runLabelWindow is the monitoring pump's periodic LabelFunc (base §4.11):
// a lightweight tick used to log labeling-subsystem liveness between
// event-driven label writes, which happen synchronously off state-service
// transitions (labeling.Service.HandleEvent) rather than on this cadence.
func (m *Manager) runLabelWindow(ctx context.Context) {
	m.log.Debug().Msg("label window elapsed")
}

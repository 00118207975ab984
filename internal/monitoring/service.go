// Package monitoring implements the fixed-interval pump of base §4.11: it
// drives the trading manager's tick on a cadence, backs off on repeated
// errors, and owns data-feed symbol subscriptions.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// CheckFunc is invoked on every tick.
type CheckFunc func(ctx context.Context) error

// LabelFunc is invoked when the periodic label window has elapsed.
type LabelFunc func(ctx context.Context)

// SymbolStats tracks per-symbol subscription activity.
type SymbolStats struct {
	UpdateCount int64
	SubscribedAt time.Time
}

// HealthSample is a host resource snapshot attached to each tick for the
// status HTTP surface (SPEC_FULL §2.1).
type HealthSample struct {
	CPUPercent    float64
	MemoryPercent float64
	SampledAt     time.Time
}

// Service is the monitoring loop described by base §4.11: one background
// thread, bounded-join cancellation, and an error counter that triggers
// sleep-and-continue backoff before giving up after max_errors failures.
type Service struct {
	feed               domain.DataFeed
	interval           time.Duration
	maxErrors          int
	errorBackoffBase   int
	maxBackoffSeconds  int
	labelWindow        time.Duration
	log                zerolog.Logger

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	errorCount   int
	lastLabelRun time.Time
	lastHealth   HealthSample
	lastTick     time.Time

	subsMu sync.Mutex
	subs   map[string]*SymbolStats
}

// New constructs a monitoring service from the configured cadence and
// backoff policy (base §6 monitoring.*).
func New(feed domain.DataFeed, cfg config.Monitoring, log zerolog.Logger) *Service {
	return &Service{
		feed:              feed,
		interval:          time.Duration(cfg.IntervalSeconds) * time.Second,
		maxErrors:         cfg.MaxErrors,
		errorBackoffBase:  cfg.ErrorBackoffBase,
		maxBackoffSeconds: cfg.MaxBackoffSeconds,
		labelWindow:       time.Duration(cfg.LabelWindowMinutes) * time.Minute,
		log:               log.With().Str("component", "monitoring").Logger(),
		subs:              make(map[string]*SymbolStats),
	}
}

// Start begins the loop if the data feed is connected, per base §4.11
// "begins loop if data feed connected". It is idempotent.
func (s *Service) Start(ctx context.Context, check CheckFunc, label LabelFunc) {
	if s.feed != nil && !s.feed.IsConnected() {
		s.log.Warn().Msg("data feed not connected; monitoring loop not started")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx, check, label)
}

// Stop sets the stop flag and joins the loop with a 5-second bound, per
// base §5 "Monitoring thread join is bounded (5 s)".
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("monitoring loop did not exit within 5s bound")
	}
}

func (s *Service) loop(ctx context.Context, check CheckFunc, label LabelFunc) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, check, label)
		}
	}
}

// tick runs one iteration: a health sample, the check callback, and the
// label callback if its window has elapsed. On error, the error counter
// increments and the loop sleeps min(60*n, 300) seconds before continuing;
// after max_errors consecutive failures the loop stops, per base §4.11.
func (s *Service) tick(ctx context.Context, check CheckFunc, label LabelFunc) {
	s.sampleHealth()

	now := time.Now()
	s.mu.Lock()
	s.lastTick = now
	s.mu.Unlock()

	if err := s.safeCheck(ctx, check); err != nil {
		s.mu.Lock()
		s.errorCount++
		n := s.errorCount
		s.mu.Unlock()

		s.log.Error().Err(err).Int("consecutive_errors", n).Msg("monitoring check failed")

		if n >= s.maxErrors {
			s.log.Error().Msg("monitoring loop stopping after max consecutive errors")
			close(s.stopCh)
			return
		}

		backoff := time.Duration(s.errorBackoffBase*n) * time.Second
		maxBackoff := time.Duration(s.maxBackoffSeconds) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-s.stopCh:
		case <-ctx.Done():
		}
		return
	}

	s.mu.Lock()
	s.errorCount = 0
	elapsed := s.lastLabelRun.IsZero() || now.Sub(s.lastLabelRun) >= s.labelWindow
	if elapsed {
		s.lastLabelRun = now
	}
	s.mu.Unlock()

	if elapsed && label != nil {
		label(ctx)
	}
}

func (s *Service) safeCheck(ctx context.Context, check CheckFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	return check(ctx)
}

func panicToError(r interface{}) error {
	return &panicError{value: r}
}

type panicError struct{ value interface{} }

func (p *panicError) Error() string { return "monitoring check panicked" }

// sampleHealth captures a process/host resource snapshot via gopsutil,
// surfaced over the status HTTP API (SPEC_FULL §2.1).
func (s *Service) sampleHealth() {
	cpuPct, err := cpu.Percent(0, false)
	if err != nil || len(cpuPct) == 0 {
		return
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.lastHealth = HealthSample{
		CPUPercent:    cpuPct[0],
		MemoryPercent: memStat.UsedPercent,
		SampledAt:     time.Now(),
	}
	s.mu.Unlock()
}

// LastHealth returns the most recent host health sample.
func (s *Service) LastHealth() HealthSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHealth
}

// LastTick returns the start timestamp of the most recent iteration.
func (s *Service) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// ErrorCount returns the current consecutive-error count.
func (s *Service) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// SubscribeOrders subscribes the feed to each unique symbol among orders
// that is not already subscribed, per base §4.11 "subscribe the feed to
// each unique symbol".
func (s *Service) SubscribeOrders(ctx context.Context, orders []*domain.PlannedOrder) {
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if seen[o.Symbol] {
			continue
		}
		seen[o.Symbol] = true
		s.subscribe(ctx, o.Symbol)
	}
}

func (s *Service) subscribe(ctx context.Context, symbol string) {
	s.subsMu.Lock()
	_, exists := s.subs[symbol]
	if !exists {
		s.subs[symbol] = &SymbolStats{SubscribedAt: time.Now()}
	}
	s.subsMu.Unlock()
	if exists || s.feed == nil {
		return
	}
	if err := s.feed.Subscribe(ctx, symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to subscribe to symbol")
	}
}

// Unsubscribe removes a symbol subscription on demand.
func (s *Service) Unsubscribe(ctx context.Context, symbol string) {
	s.subsMu.Lock()
	delete(s.subs, symbol)
	s.subsMu.Unlock()
	if s.feed != nil {
		if err := s.feed.Unsubscribe(ctx, symbol); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to unsubscribe from symbol")
		}
	}
}

// RecordUpdate increments the update counter for symbol, called whenever a
// fresh quote for it is consumed.
func (s *Service) RecordUpdate(symbol string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if stats, ok := s.subs[symbol]; ok {
		stats.UpdateCount++
	}
}

// SubscriptionStats reports a snapshot of per-symbol subscription activity.
func (s *Service) SubscriptionStats() map[string]SymbolStats {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	out := make(map[string]SymbolStats, len(s.subs))
	for k, v := range s.subs {
		out[k] = *v
	}
	return out
}

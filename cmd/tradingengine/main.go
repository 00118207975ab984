package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/robinmaple/trading-automation-sub001/internal/logging"
	"github.com/robinmaple/trading-automation-sub001/internal/manager"
)

func main() {
	bootLog := logging.New(logging.Config{Level: "info", Pretty: true})
	bootLog.Info().Msg("starting trading engine")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogFormat != "json"})
	logging.SetGlobalLogger(log)

	m, err := manager.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct trading manager")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	if err := m.Start(runCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start trading manager")
	}
	log.Info().Str("http_addr", cfg.HTTPAddr).Msg("trading engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down trading engine")
	cancelRun()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn().Msg("trading manager did not shut down within 15s bound")
	}

	log.Info().Msg("trading engine stopped")
}

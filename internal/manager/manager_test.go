package manager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/robinmaple/trading-automation-sub001/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	cfg.DatabasePath = filepath.Join(dir, "trading.db")
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.SpreadsheetPath = ""
	return cfg
}

func TestNew_WiresEveryComponent(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	assert.NotNil(t, m.state)
	assert.NotNil(t, m.loaderOrch)
	assert.NotNil(t, m.probEngine)
	assert.NotNil(t, m.prioritization)
	assert.NotNil(t, m.riskSvc)
	assert.NotNil(t, m.bracketMgr)
	assert.NotNil(t, m.labelingSvc)
	assert.NotNil(t, m.eodSvc)
	assert.NotNil(t, m.reconEngine)
	assert.NotNil(t, m.monitoringSvc)
	assert.NotNil(t, m.httpServer)
	assert.Nil(t, m.backupSvc, "backup is disabled by default config")
}

func TestTick_NoOrdersIsANoop(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	err = m.tick(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, m.active.CountWorking())
}

func TestStartStop_NoPanicWithDisabledFeedAndBackup(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
}

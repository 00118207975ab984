// Package config provides configuration management for the trading engine.
//
// Configuration is loaded from environment variables, optionally seeded from
// a .env file via godotenv. Every recognized option has a hardcoded default;
// a value that is missing or fails to parse falls back to that default
// rather than aborting startup. The fallback is silent: no warning is logged. Structural validation (weights that don't
// sum close to 1.0, non-positive intervals) is fatal at Load time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RiskLimits holds the loss-based halt thresholds and exposure caps of the
// risk management service (base §4.5).
type RiskLimits struct {
	DailyLossPct   float64
	WeeklyLossPct  float64
	MonthlyLossPct float64
	MaxOpenOrders  int
	MaxRiskPerTrade float64
	MaxCapitalUtilization float64
	CoreHybridSingleTradeCapPct float64
	CoreHybridAggregateCapPct  float64
}

// Execution holds the execution orchestrator's viability thresholds.
type Execution struct {
	FillProbabilityThreshold float64
	MinFillProbability       float64
}

// OrderDefaults holds spreadsheet-column default values (base §6).
type OrderDefaults struct {
	RiskPerTrade    float64
	RiskRewardRatio float64
	Priority        int
	OrderType       string
	PositionStrategy string
}

// Simulation holds paper-trading defaults.
type Simulation struct {
	DefaultEquity float64
}

// Monitoring holds the monitoring-loop cadence and backoff policy (base §4.11).
type Monitoring struct {
	IntervalSeconds    int
	MaxErrors          int
	ErrorBackoffBase   int
	MaxBackoffSeconds  int
	LabelWindowMinutes int
}

// EndOfDay holds the EOD policy engine's windows and toggles (base §4.10).
type EndOfDay struct {
	Enabled                bool
	CloseBufferMinutes     int
	PreMarketStartMinutes  int
	PostMarketEndMinutes   int
	MaxCloseAttempts       int
	CloseDayPositions      bool
	CloseExpiredHybrid     bool
	ExpirePlannedOrders    bool
	LeaveCorePositions     bool
	DailyResetCron         string
}

// Prioritization holds the two-layer prioritization toggles and quality weights (base §4.4).
type Prioritization struct {
	TwoLayerEnabled       bool
	WatchdogTimeoutSeconds int
	WeightManualPriority  float64
	WeightEfficiency      float64
	WeightRiskReward      float64
	WeightTimeframeMatch  float64
	WeightSetupBias       float64
}

// Reconciliation holds the reconciliation-loop cadence and backoff policy (base §4.9).
type Reconciliation struct {
	IntervalSeconds      int
	MaxConsecutiveErrors int
	PriceMatchTolerance  float64
}

// Config is the fully-resolved application configuration.
type Config struct {
	DataDir        string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	HTTPAddr       string
	SpreadsheetPath string

	BrokerAPIKey      string
	BrokerAPISecret   string
	BrokerAccountNumber string

	DataFeedURL string

	BackupEnabled        bool
	BackupIntervalHours  int
	BackupS3Bucket       string
	BackupS3Prefix       string
	BackupStagingDir     string

	RiskLimits     RiskLimits
	Execution      Execution
	OrderDefaults  OrderDefaults
	Simulation     Simulation
	Monitoring     Monitoring
	EndOfDay       EndOfDay
	Prioritization Prioritization
	Reconciliation Reconciliation
}

// Load reads configuration from environment variables, seeded from an
// optional .env file. dataDirOverride takes priority over the
// TRADING_DATA_DIR environment variable, which takes priority over the
// built-in default.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("TRADING_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		DatabasePath:    getEnv("TRADING_DB_PATH", filepath.Join(absDataDir, "trading.db")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		SpreadsheetPath: getEnv("TRADING_PLAN_PATH", ""),

		BrokerAPIKey:        getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret:     getEnv("BROKER_API_SECRET", ""),
		BrokerAccountNumber: getEnv("BROKER_ACCOUNT_NUMBER", "paper1"),

		DataFeedURL: getEnv("DATA_FEED_URL", ""),

		BackupEnabled:       getEnvAsBool("BACKUP_ENABLED", false),
		BackupIntervalHours: getEnvAsInt("BACKUP_INTERVAL_HOURS", 24),
		BackupS3Bucket:      getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Prefix:      getEnv("BACKUP_S3_PREFIX", "trading-engine"),
		BackupStagingDir:    getEnv("BACKUP_STAGING_DIR", filepath.Join(absDataDir, "backup-staging")),

		RiskLimits: RiskLimits{
			DailyLossPct:                getEnvAsFloat("RISK_DAILY_LOSS_PCT", 0.02),
			WeeklyLossPct:               getEnvAsFloat("RISK_WEEKLY_LOSS_PCT", 0.05),
			MonthlyLossPct:              getEnvAsFloat("RISK_MONTHLY_LOSS_PCT", 0.08),
			MaxOpenOrders:               getEnvAsInt("RISK_MAX_OPEN_ORDERS", 5),
			MaxRiskPerTrade:             getEnvAsFloat("RISK_MAX_RISK_PER_TRADE", 0.02),
			MaxCapitalUtilization:       getEnvAsFloat("RISK_MAX_CAPITAL_UTILIZATION", 0.8),
			CoreHybridSingleTradeCapPct: getEnvAsFloat("RISK_CORE_HYBRID_SINGLE_CAP_PCT", 0.20),
			CoreHybridAggregateCapPct:   getEnvAsFloat("RISK_CORE_HYBRID_AGGREGATE_CAP_PCT", 0.60),
		},
		Execution: Execution{
			FillProbabilityThreshold: getEnvAsFloat("EXEC_FILL_PROBABILITY_THRESHOLD", 0.5),
			MinFillProbability:       getEnvAsFloat("EXEC_MIN_FILL_PROBABILITY", 0.4),
		},
		OrderDefaults: OrderDefaults{
			RiskPerTrade:     getEnvAsFloat("ORDER_DEFAULT_RISK_PER_TRADE", 0.005),
			RiskRewardRatio:  getEnvAsFloat("ORDER_DEFAULT_RISK_REWARD_RATIO", 2.0),
			Priority:         getEnvAsInt("ORDER_DEFAULT_PRIORITY", 3),
			OrderType:        getEnv("ORDER_DEFAULT_ORDER_TYPE", "LMT"),
			PositionStrategy: getEnv("ORDER_DEFAULT_POSITION_STRATEGY", "CORE"),
		},
		Simulation: Simulation{
			DefaultEquity: getEnvAsFloat("SIMULATION_DEFAULT_EQUITY", 100000),
		},
		Monitoring: Monitoring{
			IntervalSeconds:    getEnvAsInt("MONITORING_INTERVAL_SECONDS", 60),
			MaxErrors:          getEnvAsInt("MONITORING_MAX_ERRORS", 5),
			ErrorBackoffBase:   getEnvAsInt("MONITORING_ERROR_BACKOFF_BASE", 60),
			MaxBackoffSeconds:  getEnvAsInt("MONITORING_MAX_BACKOFF_SECONDS", 300),
			LabelWindowMinutes: getEnvAsInt("MONITORING_LABEL_WINDOW_MINUTES", 10),
		},
		EndOfDay: EndOfDay{
			Enabled:               getEnvAsBool("EOD_ENABLED", true),
			CloseBufferMinutes:    getEnvAsInt("EOD_CLOSE_BUFFER_MINUTES", 15),
			PreMarketStartMinutes: getEnvAsInt("EOD_PRE_MARKET_START_MINUTES", 30),
			PostMarketEndMinutes:  getEnvAsInt("EOD_POST_MARKET_END_MINUTES", 30),
			MaxCloseAttempts:      getEnvAsInt("EOD_MAX_CLOSE_ATTEMPTS", 3),
			CloseDayPositions:     getEnvAsBool("EOD_CLOSE_DAY_POSITIONS", true),
			CloseExpiredHybrid:    getEnvAsBool("EOD_CLOSE_EXPIRED_HYBRID", true),
			ExpirePlannedOrders:   getEnvAsBool("EOD_EXPIRE_PLANNED_ORDERS", true),
			LeaveCorePositions:    getEnvAsBool("EOD_LEAVE_CORE_POSITIONS", true),
			DailyResetCron:        getEnv("EOD_DAILY_RESET_CRON", "0 9 * * MON-FRI"),
		},
		Prioritization: Prioritization{
			TwoLayerEnabled:        getEnvAsBool("PRIORITIZATION_TWO_LAYER_ENABLED", true),
			WatchdogTimeoutSeconds: getEnvAsInt("PRIORITIZATION_WATCHDOG_TIMEOUT_SECONDS", 30),
			WeightManualPriority:   getEnvAsFloat("PRIORITIZATION_WEIGHT_MANUAL_PRIORITY", 0.30),
			WeightEfficiency:       getEnvAsFloat("PRIORITIZATION_WEIGHT_EFFICIENCY", 0.25),
			WeightRiskReward:       getEnvAsFloat("PRIORITIZATION_WEIGHT_RISK_REWARD", 0.25),
			WeightTimeframeMatch:   getEnvAsFloat("PRIORITIZATION_WEIGHT_TIMEFRAME_MATCH", 0.10),
			WeightSetupBias:        getEnvAsFloat("PRIORITIZATION_WEIGHT_SETUP_BIAS", 0.10),
		},
		Reconciliation: Reconciliation{
			IntervalSeconds:      getEnvAsInt("RECONCILIATION_INTERVAL_SECONDS", 30),
			MaxConsecutiveErrors: getEnvAsInt("RECONCILIATION_MAX_CONSECUTIVE_ERRORS", 5),
			PriceMatchTolerance:  getEnvAsFloat("RECONCILIATION_PRICE_MATCH_TOLERANCE", 0.01),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration that could not possibly run correctly.
// Individual questionable-but-plausible values are left to the consuming
// service's own defensive defaulting; this only catches structural breakage.
func (c *Config) Validate() error {
	if c.Monitoring.IntervalSeconds <= 0 {
		return fmt.Errorf("monitoring.interval_seconds must be positive")
	}
	if c.Reconciliation.IntervalSeconds <= 0 {
		return fmt.Errorf("reconciliation.interval_seconds must be positive")
	}
	weightSum := c.Prioritization.WeightManualPriority + c.Prioritization.WeightEfficiency +
		c.Prioritization.WeightRiskReward + c.Prioritization.WeightTimeframeMatch +
		c.Prioritization.WeightSetupBias
	if weightSum < 0.99 || weightSum > 1.01 {
		return fmt.Errorf("prioritization quality weights must sum to ~1.0, got %f", weightSum)
	}
	return nil
}

// BackupInterval converts BackupIntervalHours into a time.Duration for the
// backup service's ticker.
func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.BackupIntervalHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

package database

// schema is the engine's full logical schema (base §6 "Persisted schema"),
// expressed as idempotent DDL so Migrate can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS planned_orders (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol               TEXT NOT NULL,
	security_type        TEXT NOT NULL,
	exchange             TEXT NOT NULL,
	currency             TEXT NOT NULL,
	action               TEXT NOT NULL,
	order_type           TEXT NOT NULL,
	entry_price          TEXT NOT NULL,
	stop_loss            TEXT NOT NULL,
	risk_per_trade       TEXT NOT NULL,
	risk_reward_ratio    TEXT NOT NULL,
	priority             INTEGER NOT NULL,
	position_strategy_id TEXT NOT NULL,
	trading_setup        TEXT,
	core_timeframe       TEXT,
	overall_trend        TEXT,
	brief_analysis       TEXT,
	status               TEXT NOT NULL,
	status_reason        TEXT,
	is_live_trading      INTEGER NOT NULL DEFAULT 0,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	expiration_date      TEXT,
	broker_order_ids     TEXT,
	imported_at          TEXT
);
CREATE INDEX IF NOT EXISTS idx_planned_orders_status ON planned_orders(status);
CREATE INDEX IF NOT EXISTS idx_planned_orders_natural_key ON planned_orders(symbol, action, entry_price, stop_loss);

CREATE TABLE IF NOT EXISTS executed_orders (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	planned_order_id INTEGER NOT NULL,
	filled_price     TEXT NOT NULL,
	filled_quantity  INTEGER NOT NULL,
	commission       TEXT NOT NULL,
	pnl              TEXT NOT NULL DEFAULT '0',
	status           TEXT NOT NULL,
	executed_at      TEXT NOT NULL,
	closed_at        TEXT,
	is_open          INTEGER NOT NULL DEFAULT 1,
	is_live_trading  INTEGER NOT NULL DEFAULT 0,
	account_number   TEXT,
	expiration_date  TEXT,
	FOREIGN KEY (planned_order_id) REFERENCES planned_orders(id)
);
CREATE INDEX IF NOT EXISTS idx_executed_orders_planned_order ON executed_orders(planned_order_id);
CREATE INDEX IF NOT EXISTS idx_executed_orders_open ON executed_orders(is_open);

CREATE TABLE IF NOT EXISTS order_labels (
	planned_order_id INTEGER NOT NULL,
	label_type       TEXT NOT NULL,
	label_value      REAL NOT NULL,
	computed_at      TEXT NOT NULL,
	notes            TEXT,
	PRIMARY KEY (planned_order_id, label_type)
);

CREATE TABLE IF NOT EXISTS probability_scores (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	planned_order_id INTEGER NOT NULL,
	timestamp        TEXT NOT NULL,
	fill_probability REAL NOT NULL,
	features         BLOB
);
CREATE INDEX IF NOT EXISTS idx_probability_scores_planned_order ON probability_scores(planned_order_id);

CREATE TABLE IF NOT EXISTS order_attempts (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	planned_order_id INTEGER NOT NULL,
	attempt_ts       TEXT NOT NULL,
	attempt_type     TEXT NOT NULL,
	fill_probability REAL,
	account_number   TEXT
);
CREATE INDEX IF NOT EXISTS idx_order_attempts_planned_order ON order_attempts(planned_order_id);

CREATE TABLE IF NOT EXISTS realized_pnl (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id       INTEGER NOT NULL,
	symbol         TEXT NOT NULL,
	pnl            TEXT NOT NULL,
	exit_date      TEXT NOT NULL,
	account_number TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_realized_pnl_account_date ON realized_pnl(account_number, exit_date);
`

package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_number INTEGER NOT NULL,
    window_id TEXT NOT NULL,
    asset TEXT NOT NULL,
    direction TEXT NOT NULL,
    group_label TEXT NOT NULL,
    group_assets TEXT NOT NULL,
    group_prices_entry TEXT NOT NULL,
    entry_time TEXT NOT NULL,
    exit_time TEXT NOT NULL,
    entry_price REAL NOT NULL,
    exit_price REAL NOT NULL,
    exit_reason TEXT NOT NULL,
    pnl_pct REAL NOT NULL,
    pnl REAL NOT NULL,
    stake REAL NOT NULL,
    outcome TEXT NOT NULL,
    cumulative_pnl REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_window ON trades(window_id);
CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset);

CREATE TABLE IF NOT EXISTS price_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asset TEXT NOT NULL,
    price REAL NOT NULL,
    source TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_time_asset ON price_snapshots(recorded_at, asset);
`

package database

// Schema is the full application schema. Every statement is idempotent so the
// schema can be re-applied on every startup.
//
// Uniqueness rules that the engines rely on:
//   - recommendations: at most one OPEN row per (portfolio_id, code),
//     enforced by a partial unique index. Historical non-OPEN rows with the
//     same code are permitted.
//   - asset_prices: one close per (asset_id, date); ingestion upserts.
//   - sim_positions: one row per (simulation_id, symbol).
const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    owner         TEXT    NOT NULL,
    name          TEXT    NOT NULL,
    base_currency TEXT    NOT NULL DEFAULT 'ARS' CHECK (base_currency IN ('ARS','USD','EUR')),
    created_at    TEXT    NOT NULL,
    updated_at    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_portfolios_owner ON portfolios(owner);

CREATE TABLE IF NOT EXISTS assets (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol     TEXT    NOT NULL UNIQUE,
    name       TEXT    NOT NULL,
    asset_type TEXT    NOT NULL DEFAULT 'FCI' CHECK (asset_type IN ('FCI','BOND','STOCK','FX','CASH','CRYPTO','OTHER')),
    currency   TEXT    NOT NULL DEFAULT 'ARS',
    created_at TEXT    NOT NULL,
    updated_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id INTEGER NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    asset_id     INTEGER NOT NULL REFERENCES assets(id),
    tx_type      TEXT    NOT NULL CHECK (tx_type IN ('BUY','SELL','DEPOSIT','WITHDRAW','DIVIDEND','FEE')),
    quantity     REAL    NOT NULL DEFAULT 0,
    price        REAL    NOT NULL DEFAULT 0,
    fee          REAL    NOT NULL DEFAULT 0,
    tx_date      TEXT    NOT NULL,
    note         TEXT    NOT NULL DEFAULT '',
    created_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio_date ON transactions(portfolio_id, tx_date DESC, id DESC);

CREATE TABLE IF NOT EXISTS asset_prices (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_id INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
    date     TEXT    NOT NULL,
    close    REAL    NOT NULL,
    UNIQUE (asset_id, date)
);

CREATE INDEX IF NOT EXISTS idx_asset_prices_asset_date ON asset_prices(asset_id, date DESC);

CREATE TABLE IF NOT EXISTS recommendations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    portfolio_id    INTEGER NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    code            TEXT    NOT NULL,
    severity        TEXT    NOT NULL DEFAULT 'LOW' CHECK (severity IN ('LOW','MED','HIGH')),
    title           TEXT    NOT NULL,
    rationale       TEXT    NOT NULL,
    evidence        TEXT    NOT NULL DEFAULT '{}',
    status          TEXT    NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN','ACCEPTED','IGNORED')),
    decision_note   TEXT    NOT NULL DEFAULT '',
    ai_score        INTEGER,
    ai_confidence   INTEGER,
    ai_action       TEXT    NOT NULL DEFAULT 'HOLD',
    ai_summary      TEXT    NOT NULL DEFAULT '',
    ai_reasons      TEXT    NOT NULL DEFAULT '{}',
    ai_evaluated_at TEXT,
    created_at      TEXT    NOT NULL,
    updated_at      TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_recommendations_open_code
    ON recommendations(portfolio_id, code) WHERE status = 'OPEN';
CREATE INDEX IF NOT EXISTS idx_recommendations_portfolio_status
    ON recommendations(portfolio_id, status, created_at DESC);

CREATE TABLE IF NOT EXISTS simulations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    owner        TEXT    NOT NULL,
    name         TEXT    NOT NULL,
    preset       TEXT    NOT NULL DEFAULT 'BAL' CHECK (preset IN ('CONS','BAL','AGR')),
    virtual_cash REAL    NOT NULL DEFAULT 1000000,
    current_day  INTEGER NOT NULL DEFAULT 0,
    seed         INTEGER NOT NULL DEFAULT 12345,
    created_at   TEXT    NOT NULL,
    updated_at   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulations_owner ON simulations(owner);

CREATE TABLE IF NOT EXISTS sim_positions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    simulation_id INTEGER NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
    symbol        TEXT    NOT NULL,
    quantity      REAL    NOT NULL DEFAULT 0,
    avg_price     REAL    NOT NULL DEFAULT 0,
    updated_at    TEXT    NOT NULL,
    UNIQUE (simulation_id, symbol)
);

CREATE TABLE IF NOT EXISTS sim_trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    simulation_id INTEGER NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
    symbol        TEXT    NOT NULL,
    side          TEXT    NOT NULL CHECK (side IN ('BUY','SELL')),
    quantity      REAL    NOT NULL,
    price         REAL    NOT NULL,
    day           INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sim_trades_simulation ON sim_trades(simulation_id, id DESC);

CREATE TABLE IF NOT EXISTS audit_events (
    id         TEXT PRIMARY KEY,
    actor      TEXT,
    event_type TEXT NOT NULL,
    ip_address TEXT,
    user_agent TEXT NOT NULL DEFAULT '',
    details    TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at DESC);

CREATE TABLE IF NOT EXISTS diag_cache (
    portfolio_id INTEGER PRIMARY KEY REFERENCES portfolios(id) ON DELETE CASCADE,
    payload      BLOB NOT NULL,
    updated_at   TEXT NOT NULL
);
`

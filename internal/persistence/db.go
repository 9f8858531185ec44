// Package persistence provides SQLite-based storage for finished runs.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/engine"
)

// DB wraps a SQLite connection for run results.
type DB struct {
	conn *sqlx.DB
}

// Run is what SaveRun needs from a run; *engine.RunHandle satisfies it.
type Run interface {
	ID() string
	Created() time.Time
	Config() config.Config
	Snapshots() []engine.ModelSnapshot
	Markets() []economy.MarketID
	Trades(market economy.MarketID) ([]economy.Trade, error)
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		config_yaml TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS region_rates (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		region TEXT NOT NULL,
		rate REAL NOT NULL,
		inflation REAL NOT NULL,
		output_gap REAL NOT NULL,
		population INTEGER NOT NULL,
		PRIMARY KEY (run_id, step, region)
	);

	CREATE TABLE IF NOT EXISTS market_quotes (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		market TEXT NOT NULL,
		best_bid TEXT,
		best_ask TEXT,
		last_price TEXT,
		volume TEXT NOT NULL,
		trades INTEGER NOT NULL,
		resting INTEGER NOT NULL,
		PRIMARY KEY (run_id, step, market)
	);

	CREATE TABLE IF NOT EXISTS trades (
		run_id TEXT NOT NULL,
		market TEXT NOT NULL,
		seq INTEGER NOT NULL,
		step INTEGER NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		buyer INTEGER NOT NULL,
		seller INTEGER NOT NULL,
		buy_seq INTEGER NOT NULL,
		sell_seq INTEGER NOT NULL,
		PRIMARY KEY (run_id, market, seq)
	);

	CREATE TABLE IF NOT EXISTS agent_states (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		region TEXT NOT NULL,
		cell INTEGER NOT NULL,
		inventory REAL NOT NULL,
		base TEXT NOT NULL,
		quote TEXT NOT NULL,
		PRIMARY KEY (run_id, step, agent_id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_step ON trades(run_id, step);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun writes a run and its full time series in one transaction,
// replacing any earlier save of the same run.
func (db *DB) SaveRun(run Run) error {
	snaps := run.Snapshots()
	slog.Info("saving run", "run", run.ID(), "steps", len(snaps))

	raw, err := run.Config().Marshal()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"runs", "region_rates", "market_quotes", "trades", "agent_states"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE "+col+" = ?", run.ID()); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec("INSERT INTO runs (id, created_at, seed, steps, config_yaml) VALUES (?, ?, ?, ?, ?)",
		run.ID(), run.Created().Format(time.RFC3339), run.Config().Seed, len(snaps), string(raw)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := saveSnapshots(tx, run.ID(), snaps); err != nil {
		return err
	}

	for _, market := range run.Markets() {
		trades, err := run.Trades(market)
		if err != nil {
			return err
		}
		if err := saveTrades(tx, run.ID(), trades); err != nil {
			return fmt.Errorf("save trades %s: %w", market, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "run", run.ID())
	return nil
}

func saveSnapshots(tx *sqlx.Tx, runID string, snaps []engine.ModelSnapshot) error {
	rates, err := tx.Preparex(`INSERT INTO region_rates
		(run_id, step, region, rate, inflation, output_gap, population) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rates.Close()

	quotes, err := tx.Preparex(`INSERT INTO market_quotes
		(run_id, step, market, best_bid, best_ask, last_price, volume, trades, resting)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer quotes.Close()

	states, err := tx.Preparex(`INSERT INTO agent_states
		(run_id, step, agent_id, kind, region, cell, inventory, base, quote)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer states.Close()

	for _, s := range snaps {
		for id, r := range s.Regions {
			if _, err := rates.Exec(runID, s.Step, string(id), r.Rate, r.Inflation, r.OutputGap, s.Population[id]); err != nil {
				return fmt.Errorf("insert rate step %d: %w", s.Step, err)
			}
		}
		for id, m := range s.Markets {
			if _, err := quotes.Exec(runID, s.Step, string(id), m.BestBid, m.BestAsk, m.LastPrice,
				m.Volume, m.Trades, m.Resting); err != nil {
				return fmt.Errorf("insert quote step %d: %w", s.Step, err)
			}
		}
		for _, a := range s.Agents {
			if _, err := states.Exec(runID, s.Step, uint64(a.ID), a.Kind.String(), string(a.Region),
				int(a.Cell), a.Inventory, a.Base, a.Quote); err != nil {
				return fmt.Errorf("insert agent %d step %d: %w", a.ID, s.Step, err)
			}
		}
	}
	return nil
}

func saveTrades(tx *sqlx.Tx, runID string, trades []economy.Trade) error {
	stmt, err := tx.Preparex(`INSERT INTO trades
		(run_id, market, seq, step, price, quantity, buyer, seller, buy_seq, sell_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range trades {
		if _, err := stmt.Exec(runID, string(t.Market), i+1, t.Step, t.Price, t.Quantity,
			uint64(t.Buyer), uint64(t.Seller), t.BuySeq, t.SellSeq); err != nil {
			return err
		}
	}
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// RunRecord is a row of the runs table.
type RunRecord struct {
	ID        string `db:"id" json:"id"`
	CreatedAt string `db:"created_at" json:"created_at"`
	Seed      int64  `db:"seed" json:"seed"`
	Steps     int    `db:"steps" json:"steps"`
}

// Runs lists saved runs, newest first.
func (db *DB) Runs() ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs, "SELECT id, created_at, seed, steps FROM runs ORDER BY created_at DESC, id")
	return runs, err
}

// RunConfig returns the YAML configuration a run was saved with.
func (db *DB) RunConfig(runID string) (string, error) {
	var raw string
	err := db.conn.Get(&raw, "SELECT config_yaml FROM runs WHERE id = ?", runID)
	return raw, err
}

// RateRow is one region's macro state at one step.
type RateRow struct {
	Step       int     `db:"step" json:"step"`
	Rate       float64 `db:"rate" json:"rate"`
	Inflation  float64 `db:"inflation" json:"inflation"`
	OutputGap  float64 `db:"output_gap" json:"output_gap"`
	Population int     `db:"population" json:"population"`
}

// RegionRates returns a region's rate series in step order.
func (db *DB) RegionRates(runID, region string) ([]RateRow, error) {
	var rows []RateRow
	err := db.conn.Select(&rows,
		"SELECT step, rate, inflation, output_gap, population FROM region_rates WHERE run_id = ? AND region = ? ORDER BY step",
		runID, region,
	)
	return rows, err
}

// QuoteRow is one market's top of book at one step.
type QuoteRow struct {
	Step      int                 `db:"step" json:"step"`
	BestBid   decimal.NullDecimal `db:"best_bid" json:"best_bid"`
	BestAsk   decimal.NullDecimal `db:"best_ask" json:"best_ask"`
	LastPrice decimal.NullDecimal `db:"last_price" json:"last_price"`
	Volume    decimal.Decimal     `db:"volume" json:"volume"`
	Trades    int                 `db:"trades" json:"trades"`
}

// MarketQuotes returns a market's quote series in step order.
func (db *DB) MarketQuotes(runID, market string) ([]QuoteRow, error) {
	var rows []QuoteRow
	err := db.conn.Select(&rows,
		"SELECT step, best_bid, best_ask, last_price, volume, trades FROM market_quotes WHERE run_id = ? AND market = ? ORDER BY step",
		runID, market,
	)
	return rows, err
}

// TradeCount returns how many trades a market recorded in a run.
func (db *DB) TradeCount(runID, market string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM trades WHERE run_id = ? AND market = ?", runID, market)
	return n, err
}

// AgentRow is one agent's saved state at one step.
type AgentRow struct {
	AgentID   uint64          `db:"agent_id" json:"agent_id"`
	Kind      string          `db:"kind" json:"kind"`
	Region    string          `db:"region" json:"region"`
	Cell      int             `db:"cell" json:"cell"`
	Inventory float64         `db:"inventory" json:"inventory"`
	Base      decimal.Decimal `db:"base" json:"base"`
	Quote     decimal.Decimal `db:"quote" json:"quote"`
}

// AgentStates returns every agent's state at one step, by agent id.
func (db *DB) AgentStates(runID string, step int) ([]AgentRow, error) {
	var rows []AgentRow
	err := db.conn.Select(&rows,
		"SELECT agent_id, kind, region, cell, inventory, base, quote FROM agent_states WHERE run_id = ? AND step = ? ORDER BY agent_id",
		runID, step,
	)
	return rows, err
}

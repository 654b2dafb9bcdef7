// Package journal persists closed trades to a CSV file and the database.
package journal

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClosedTrade is the full record of a single completed trade.
type ClosedTrade struct {
	TradeNumber      int
	WindowID         string
	Asset            string
	Direction        string
	GroupLabel       string
	GroupAssets      []string
	GroupPricesEntry map[string]float64
	EntryTime        time.Time
	ExitTime         time.Time
	EntryPrice       float64
	ExitPrice        float64
	ExitReason       string
	PnLPct           float64
	PnL              float64
	Stake            float64
	Outcome          string
	CumulativePnL    float64
}

var csvHeader = []string{
	"timestamp_entry", "timestamp_exit", "window_id", "asset", "direction",
	"group_label", "group_assets", "group_prices_entry",
	"entry_price", "exit_price", "exit_reason",
	"pnl_pct", "pnl_usd", "stake_size", "outcome",
	"cumulative_pnl", "trade_number",
}

// CSVWriter appends closed trades to a CSV trade log, writing the header
// only when the file is new or empty.
type CSVWriter struct {
	file *os.File
	w    *csv.Writer
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trade log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat trade log: %w", err)
	}
	w := &CSVWriter{file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing trade log header: %w", err)
		}
		w.w.Flush()
	}
	return w, nil
}

func (w *CSVWriter) Append(t ClosedTrade) error {
	prices, err := json.Marshal(t.GroupPricesEntry)
	if err != nil {
		return fmt.Errorf("encoding group prices: %w", err)
	}
	rec := []string{
		t.EntryTime.UTC().Format(time.RFC3339),
		t.ExitTime.UTC().Format(time.RFC3339),
		t.WindowID,
		t.Asset,
		t.Direction,
		t.GroupLabel,
		strings.Join(t.GroupAssets, "|"),
		string(prices),
		formatPrice(t.EntryPrice),
		formatPrice(t.ExitPrice),
		t.ExitReason,
		strconv.FormatFloat(t.PnLPct, 'f', 4, 64),
		strconv.FormatFloat(t.PnL, 'f', 4, 64),
		strconv.FormatFloat(t.Stake, 'f', 2, 64),
		t.Outcome,
		strconv.FormatFloat(t.CumulativePnL, 'f', 4, 64),
		strconv.Itoa(t.TradeNumber),
	}
	if err := w.w.Write(rec); err != nil {
		return fmt.Errorf("writing trade record: %w", err)
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *CSVWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 4, 64)
}

// Store records closed trades in the trades table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(t ClosedTrade) error {
	assets, err := json.Marshal(t.GroupAssets)
	if err != nil {
		return fmt.Errorf("encoding group assets: %w", err)
	}
	prices, err := json.Marshal(t.GroupPricesEntry)
	if err != nil {
		return fmt.Errorf("encoding group prices: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO trades (trade_number, window_id, asset, direction, group_label,
			group_assets, group_prices_entry, entry_time, exit_time,
			entry_price, exit_price, exit_reason, pnl_pct, pnl, stake, outcome, cumulative_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeNumber,
		t.WindowID,
		t.Asset,
		t.Direction,
		t.GroupLabel,
		string(assets),
		string(prices),
		t.EntryTime.UTC().Format(time.RFC3339),
		t.ExitTime.UTC().Format(time.RFC3339),
		t.EntryPrice,
		t.ExitPrice,
		t.ExitReason,
		t.PnLPct,
		t.PnL,
		t.Stake,
		t.Outcome,
		t.CumulativePnL,
	)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// Recorder fans a closed trade out to every configured sink.
type Recorder struct {
	sinks []Sink
}

// Sink accepts closed trades.
type Sink interface {
	Append(ClosedTrade) error
}

// sinkFunc adapts a function to the Sink interface.
type sinkFunc func(ClosedTrade) error

func (f sinkFunc) Append(t ClosedTrade) error { return f(t) }

func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// StoreSink wraps a Store as a Sink.
func StoreSink(s *Store) Sink {
	return sinkFunc(s.Record)
}

func (r *Recorder) Append(t ClosedTrade) error {
	for _, s := range r.sinks {
		if err := s.Append(t); err != nil {
			return err
		}
	}
	return nil
}

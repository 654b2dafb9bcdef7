package feed

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"
)

// SourceReplay labels prices coming from historical records.
const SourceReplay = "replay"

// Replay walks pre-sorted historical prices one timestamp at a time.
// Timestamps that do not carry every required asset are dropped at load
// time, so each step exposes a complete snapshot with exact values.
type Replay struct {
	steps    []replayStep
	idx      int
	required []string
	store    store
}

type replayStep struct {
	at     time.Time
	prices map[string]float64
}

// NewReplayFromCSV loads records shaped timestamp,asset,price (with
// header) from path.
func NewReplayFromCSV(path string, required []string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading replay header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("replay header needs timestamp,asset,price columns, got %v", header)
	}

	byTime := make(map[time.Time]map[string]float64)
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading replay line %d: %w", line+1, err)
		}
		line++

		ts, err := parseReplayTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: parsing price %q: %w", line, rec[2], err)
		}

		if byTime[ts] == nil {
			byTime[ts] = make(map[string]float64)
		}
		byTime[ts][rec[1]] = price
	}

	return newReplay(byTime, required)
}

// NewReplayFromDB loads snapshots the collector recorded into SQLite,
// restricted to [from, to].
func NewReplayFromDB(db *sql.DB, required []string, from, to time.Time) (*Replay, error) {
	rows, err := db.Query(`
		SELECT recorded_at, asset, price FROM price_snapshots
		WHERE recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at, asset`,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("loading price snapshots: %w", err)
	}
	defer rows.Close()

	byTime := make(map[time.Time]map[string]float64)
	for rows.Next() {
		var raw, asset string
		var price float64
		if err := rows.Scan(&raw, &asset, &price); err != nil {
			return nil, err
		}
		ts, err := parseReplayTime(raw)
		if err != nil {
			return nil, err
		}
		if byTime[ts] == nil {
			byTime[ts] = make(map[string]float64)
		}
		byTime[ts][asset] = price
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return newReplay(byTime, required)
}

func newReplay(byTime map[time.Time]map[string]float64, required []string) (*Replay, error) {
	steps := make([]replayStep, 0, len(byTime))
	skipped := 0
	for ts, prices := range byTime {
		if !hasAll(prices, required) {
			skipped++
			continue
		}
		steps = append(steps, replayStep{at: ts, prices: prices})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].at.Before(steps[j].at) })

	if len(steps) == 0 {
		return nil, fmt.Errorf("no replay timestamps carry all required assets %v", required)
	}
	if skipped > 0 {
		slog.Info("replay skipped incomplete timestamps", "skipped", skipped, "usable", len(steps))
	}

	return &Replay{steps: steps, idx: -1, required: required}, nil
}

// Next advances to the following timestamp, publishing its snapshot.
// It returns false once the history is exhausted.
func (r *Replay) Next() bool {
	if r.idx+1 >= len(r.steps) {
		return false
	}
	r.idx++
	step := r.steps[r.idx]
	r.store.put(Snapshot{Prices: step.prices, At: step.at, Source: SourceReplay})
	return true
}

// Now returns the timestamp of the current step. Only valid after a
// successful Next.
func (r *Replay) Now() time.Time {
	return r.steps[r.idx].at
}

// Len reports the number of usable timestamps.
func (r *Replay) Len() int {
	return len(r.steps)
}

func (r *Replay) Latest(assets []string) Snapshot {
	return r.store.get(assets)
}

// Health is always OK: historical data cannot degrade.
func (r *Replay) Health() Health {
	return HealthOK
}

func (r *Replay) Close() error {
	return nil
}

func hasAll(prices map[string]float64, required []string) bool {
	for _, a := range required {
		if _, ok := prices[a]; !ok {
			return false
		}
	}
	return true
}

var replayTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseReplayTime(raw string) (time.Time, error) {
	for _, layout := range replayTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

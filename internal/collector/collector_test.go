package collector

import (
	"testing"
	"time"

	"laggard/internal/db"
	"laggard/internal/feed"
)

func TestCollect_StoresOneRowPerAsset(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	c := New(database, []string{"BTC", "ETH"})
	snap := feed.Snapshot{
		Prices: map[string]float64{"BTC": 0.61, "ETH": 0.58},
		At:     time.Date(2024, 9, 1, 10, 40, 0, 0, time.UTC),
		Source: "poll",
	}
	if err := c.Collect(snap); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM price_snapshots`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func TestCollect_SkipsRepeatedTimestamps(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	c := New(database, []string{"BTC"})
	snap := feed.Snapshot{
		Prices: map[string]float64{"BTC": 0.61},
		At:     time.Date(2024, 9, 1, 10, 40, 0, 0, time.UTC),
		Source: "poll",
	}
	if err := c.Collect(snap); err != nil {
		t.Fatal(err)
	}
	if err := c.Collect(snap); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM price_snapshots`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected duplicate snapshot to be skipped, got %d rows", count)
	}
}

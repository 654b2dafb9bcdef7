package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"laggard/internal/backtest"
	"laggard/internal/collector"
	"laggard/internal/config"
	"laggard/internal/db"
	"laggard/internal/engine"
	"laggard/internal/feed"
	"laggard/internal/journal"
	"laggard/internal/live"
	"laggard/internal/metrics"
	"laggard/internal/report"
	"laggard/internal/sample"
	"laggard/internal/strategy"
	"laggard/internal/window"
)

func main() {
	backtestMode := flag.Bool("backtest", false, "Run in backtest mode against historical data")
	backtestFrom := flag.String("from", "", "Backtest start date (YYYY-MM-DD)")
	backtestTo := flag.String("to", "", "Backtest end date (YYYY-MM-DD)")
	dataFile := flag.String("data", "", "Backtest CSV file (timestamp,asset,price); omit to replay from the database")
	sampleMode := flag.Bool("sample", false, "Generate synthetic sample data and exit")
	sampleOut := flag.String("sample-out", "data/historical_prices.csv", "Output path for sample data")
	reportMode := flag.Bool("report", false, "Print a performance report from recorded trades and exit")
	flag.Parse()

	configPath := "config.toml"
	if p := os.Getenv("LAGGARD_CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	})))

	slog.Info("laggard starting")

	if *sampleMode {
		if err := runSample(cfg, *sampleOut, *backtestFrom, *backtestTo); err != nil {
			slog.Error("sample generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath)

	if *reportMode {
		trades, err := report.Load(database)
		if err != nil {
			slog.Error("failed to load trades", "error", err)
			os.Exit(1)
		}
		fmt.Print(report.Format(report.Build(trades)))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if *backtestMode {
		if err := runBacktest(ctx, cfg, database, *dataFile, *backtestFrom, *backtestTo); err != nil {
			slog.Error("backtest failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runLive(ctx, cfg, database); err != nil && err != context.Canceled {
		slog.Error("live trading error", "error", err)
		os.Exit(1)
	}

	slog.Info("laggard stopped")
}

func runSample(cfg *config.Config, out, fromStr, toStr string) error {
	from, to, err := backtest.ParseDateRange(fromStr, toStr)
	if err != nil {
		return err
	}
	_, err = sample.Generate(out, cfg.Assets.Reference, cfg.Assets.Tradeable, from, to, cfg.Feed.SyntheticSeed)
	return err
}

func runBacktest(ctx context.Context, cfg *config.Config, database *sql.DB, dataFile, fromStr, toStr string) error {
	assets := cfg.Assets.All()

	var replay *feed.Replay
	var err error
	if dataFile != "" {
		replay, err = feed.NewReplayFromCSV(dataFile, assets)
	} else {
		var from, to time.Time
		from, to, err = backtest.ParseDateRange(fromStr, toStr)
		if err != nil {
			return err
		}
		replay, err = feed.NewReplayFromDB(database, assets, from, to)
	}
	if err != nil {
		return err
	}

	clock, err := window.NewClock(cfg.Window.Duration.Duration)
	if err != nil {
		return err
	}

	capture := &backtest.Capture{}
	eng := engine.New(cfg, clock, strategy.NewEngine(cfg.Assets, cfg.Strategy), capture)
	runner := backtest.NewRunner(replay, eng, assets, capture)

	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Print(report.Format(rep))
	report.Log(rep)

	out := fmt.Sprintf("backtest_results_%s.csv", time.Now().Format("20060102_150405"))
	return runner.ExportCSV(out)
}

func runLive(ctx context.Context, cfg *config.Config, database *sql.DB) error {
	assets := cfg.Assets.All()

	f, err := buildFeed(cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	if streamer, ok := f.(feed.Streamer); ok {
		go func() {
			if err := streamer.Run(ctx); err != nil && err != context.Canceled {
				slog.Error("feed loop stopped", "error", err)
			}
		}()
	}

	csvLog, err := journal.NewCSVWriter(cfg.General.TradeLog)
	if err != nil {
		return err
	}
	defer csvLog.Close()

	recorder := journal.NewRecorder(csvLog, journal.StoreSink(journal.NewStore(database)))

	clock, err := window.NewClock(cfg.Window.Duration.Duration)
	if err != nil {
		return err
	}
	eng := engine.New(cfg, clock, strategy.NewEngine(cfg.Assets, cfg.Strategy), recorder)
	coll := collector.New(database, assets)

	metricsSrv := metrics.Serve(cfg.General.MetricsAddr)
	defer metricsSrv.Close()

	trader := live.NewTrader(f, eng, coll, assets, cfg.Feed.PollInterval.Duration)
	return trader.Run(ctx)
}

func buildFeed(cfg *config.Config) (feed.Feed, error) {
	switch cfg.Feed.Provider {
	case "synthetic":
		return feed.NewSynthetic(cfg.Assets.Reference, cfg.Assets.Tradeable,
			cfg.Feed.PollInterval.Duration, cfg.Feed.SyntheticSeed), nil
	case "poll":
		return feed.NewPoll(cfg.Feed, cfg.Feed.Markets), nil
	case "stream":
		fallback := feed.NewSynthetic(cfg.Assets.Reference, cfg.Assets.Tradeable,
			cfg.Feed.PollInterval.Duration, cfg.Feed.SyntheticSeed)
		return feed.NewStream(cfg.Feed, cfg.Feed.Markets, fallback), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

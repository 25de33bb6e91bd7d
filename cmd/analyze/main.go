package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tmoretti/wfm-data/internal/analytics"
	"github.com/tmoretti/wfm-data/internal/cache"
	"github.com/tmoretti/wfm-data/internal/config"
	"github.com/tmoretti/wfm-data/internal/database"
	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/storage"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/tracker.yaml", "path to config file")
	itemName := flag.String("item", "", "item url_name to analyze")
	rangeName := flag.String("range", "month", "analysis window: day, week, month, year")
	asJSON := flag.Bool("json", false, "emit JSON instead of text")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if *itemName == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -item <url_name> [-range day|week|month|year] [-json]")
		os.Exit(2)
	}
	timeRange := model.TimeRange(*rangeName)
	if !timeRange.Valid() {
		fmt.Fprintf(os.Stderr, "unknown range %q\n", *rangeName)
		os.Exit(2)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := storage.NewPostgres(pool)

	item, err := findItem(ctx, store, *itemName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var analysisCache *cache.Cache
	if cfg.Redis.Addr != "" {
		if analysisCache, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL); err != nil {
			logger.Warn("redis unavailable, skipping cache", "error", err)
			analysisCache = nil
		} else {
			defer analysisCache.Close()
		}
	}

	analysis, err := analysisCache.GetAnalysis(ctx, item.ID, timeRange)
	if err != nil {
		logger.Warn("analysis cache read failed", "error", err)
	}
	if analysis == nil {
		engine := analytics.New(analytics.Config{
			OutlierThreshold:     cfg.Analytics.OutlierThreshold,
			PriceChangeThreshold: cfg.Analytics.PriceChangeThreshold,
			MinDataPoints:        cfg.Analytics.MinDataPoints,
		}, store, logger)

		analysis, err = engine.Analyze(ctx, item.ID, timeRange)
		if err != nil {
			fmt.Fprintf(os.Stderr, "analyze %s: %v\n", item.Name, err)
			os.Exit(1)
		}
		if analysis != nil {
			if err := analysisCache.SetAnalysis(ctx, analysis); err != nil {
				logger.Warn("analysis cache write failed", "error", err)
			}
		}
	}

	if analysis == nil {
		fmt.Printf("%s: not enough data in the last %s for analysis\n", item.Name, timeRange)
		return
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analysis); err != nil {
			fmt.Fprintf(os.Stderr, "encode analysis: %v\n", err)
			os.Exit(1)
		}
		return
	}
	render(os.Stdout, item, analysis)
}

func findItem(ctx context.Context, store storage.Store, name string) (model.Item, error) {
	items, err := store.Items(ctx)
	if err != nil {
		return model.Item{}, fmt.Errorf("list items: %w", err)
	}
	for _, it := range items {
		if it.Name == name {
			return it, nil
		}
	}
	return model.Item{}, fmt.Errorf("item %q is not tracked", name)
}

func render(w *os.File, item model.Item, a *model.MarketAnalysis) {
	fmt.Fprintf(w, "%s - last %s (generated %s)\n",
		item.Name, a.Range, a.Generated.Format(time.RFC3339))
	fmt.Fprintf(w, "  trend:        %s (strength %.2f, running %s)\n",
		a.Trend.Direction, a.Trend.Strength, a.Trend.Duration)
	fmt.Fprintf(w, "  moving avg:   7d %.1f / 30d %.1f\n", a.MovingAvg7d, a.MovingAvg30d)
	fmt.Fprintf(w, "  volatility:   %.4f\n", a.PriceVolatility)
	fmt.Fprintf(w, "  volume:       %.1f/day, demand strength %.2f\n",
		a.AvgDailyVolume, a.DemandStrength)
	if a.BestBuyTime != "" || a.BestSellTime != "" {
		fmt.Fprintf(w, "  best times:   buy %s, sell %s\n", a.BestBuyTime, a.BestSellTime)
	}
	if n := len(a.MarketSpreadTrend); n > 0 {
		fmt.Fprintf(w, "  spread:       %.1f (latest of %d days)\n",
			a.MarketSpreadTrend[n-1], n)
	}
	if len(a.Outliers) > 0 {
		prices := make([]string, len(a.Outliers))
		for i, p := range a.Outliers {
			prices[i] = fmt.Sprintf("%.0f", p.Price)
		}
		fmt.Fprintf(w, "  outliers:     %s\n", strings.Join(prices, ", "))
	}
	if len(a.RapidChanges) > 0 {
		fmt.Fprintf(w, "  rapid moves:  %d in window\n", len(a.RapidChanges))
	}
	if len(a.SeasonalPatterns) > 0 {
		fmt.Fprintf(w, "  seasonality:\n")
		for _, wd := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"} {
			if dev, ok := a.SeasonalPatterns[wd]; ok {
				fmt.Fprintf(w, "    %-9s %+.1f%%\n", wd, dev*100)
			}
		}
	}
}

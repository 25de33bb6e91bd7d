package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/storage"
)

func newTestEngine(t *testing.T, cfg Config, points []model.PricePoint, now time.Time) *Engine {
	t.Helper()
	store := storage.NewMemory()
	if _, err := store.AppendPricePoints(context.Background(), points); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	e := New(cfg, store, nil)
	e.now = func() time.Time { return now }
	return e
}

func sellPoint(at time.Time, price float64, qty int) model.PricePoint {
	return model.PricePoint{ItemID: 1, RecordedAt: at, Price: price, Quantity: qty, Side: model.SideSell}
}

func buyPoint(at time.Time, price float64, qty int) model.PricePoint {
	return model.PricePoint{ItemID: 1, RecordedAt: at, Price: price, Quantity: qty, Side: model.SideBuy}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	points := []model.PricePoint{
		sellPoint(now.Add(-2*time.Hour), 100, 1),
		sellPoint(now.Add(-time.Hour), 101, 1),
	}
	e := newTestEngine(t, Config{MinDataPoints: 10}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeWeek)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis != nil {
		t.Errorf("got analysis %+v for sparse window, want nil", analysis)
	}
}

func TestSevenDayMovingAverage(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	var points []model.PricePoint
	for i, price := range []float64{10, 20, 30, 40, 50, 60, 70} {
		at := now.Add(-time.Duration(7-i) * 24 * time.Hour).Add(12 * time.Hour)
		points = append(points, sellPoint(at, price, 1))
	}
	e := newTestEngine(t, Config{MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeWeek)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if analysis.MovingAvg7d != 40.0 {
		t.Errorf("MovingAvg7d = %v, want 40.0", analysis.MovingAvg7d)
	}
	if got := len(analysis.PriceTrends); got != 7 {
		t.Errorf("got %d daily buckets, want 7", got)
	}
	if analysis.Trend.Direction != model.TrendUp {
		t.Errorf("direction = %v, want up", analysis.Trend.Direction)
	}
	if analysis.Trend.Strength <= 0 || analysis.Trend.Strength > 1 {
		t.Errorf("strength = %v, want in (0, 1]", analysis.Trend.Strength)
	}
	if analysis.Trend.Duration != 6*24*time.Hour {
		t.Errorf("duration = %v, want full 6-day run", analysis.Trend.Duration)
	}
}

func TestDailyMedianResistsOutliers(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	var points []model.PricePoint
	for i, price := range []float64{9, 10, 10, 10, 11, 50} {
		points = append(points, sellPoint(now.Add(time.Duration(i-12)*time.Hour), price, 1))
	}
	e := newTestEngine(t, Config{MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeDay)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if len(analysis.PriceTrends) == 0 {
		t.Fatal("no daily buckets")
	}
	var medians []float64
	for _, d := range analysis.PriceTrends {
		medians = append(medians, d.MedianPrice)
	}
	// The 50 spike moves the mean but not the median.
	for _, m := range medians {
		if m != 10 {
			t.Errorf("daily medians = %v, want all 10", medians)
			break
		}
	}
}

func TestOutlierDetection(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	var points []model.PricePoint
	for i, price := range []float64{10, 10, 11, 9, 10, 50} {
		points = append(points, sellPoint(now.Add(time.Duration(i-6)*time.Hour), price, 1))
	}
	e := newTestEngine(t, Config{OutlierThreshold: 2.0, MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeDay)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if len(analysis.Outliers) != 1 {
		t.Fatalf("got %d outliers, want 1: %v", len(analysis.Outliers), analysis.Outliers)
	}
	if analysis.Outliers[0].Price != 50 {
		t.Errorf("outlier price = %v, want 50", analysis.Outliers[0].Price)
	}
}

func TestSpreadFromBothSides(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	at := now.Add(-2 * time.Hour)
	points := []model.PricePoint{
		buyPoint(at, 95, 1),
		buyPoint(at.Add(time.Minute), 90, 1),
		sellPoint(at.Add(2*time.Minute), 100, 1),
		sellPoint(at.Add(3*time.Minute), 105, 1),
	}
	e := newTestEngine(t, Config{MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeDay)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if len(analysis.MarketSpreadTrend) != 1 {
		t.Fatalf("got %d spread buckets, want 1", len(analysis.MarketSpreadTrend))
	}
	// min(sell) - max(buy) = 100 - 95
	if analysis.MarketSpreadTrend[0] != 5 {
		t.Errorf("spread = %v, want 5", analysis.MarketSpreadTrend[0])
	}
}

func TestRapidChanges(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		now.Add(-3 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(-time.Hour),
	}
	points := []model.PricePoint{
		sellPoint(times[0], 100, 1),
		sellPoint(times[1], 105, 1), // 5%, below threshold
		sellPoint(times[2], 120, 1), // ~14.3%
	}
	e := newTestEngine(t, Config{PriceChangeThreshold: 0.1, MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeDay)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if len(analysis.RapidChanges) != 1 {
		t.Fatalf("got %d rapid changes, want 1", len(analysis.RapidChanges))
	}
	if !analysis.RapidChanges[0].Equal(times[2]) {
		t.Errorf("flagged %v, want %v", analysis.RapidChanges[0], times[2])
	}
}

func TestVolumeAndDemand(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	day1 := now.Add(-36 * time.Hour)
	day2 := now.Add(-12 * time.Hour)
	points := []model.PricePoint{
		buyPoint(day1, 90, 4),
		sellPoint(day1.Add(time.Hour), 100, 1),
		buyPoint(day2, 92, 2),
		sellPoint(day2.Add(time.Hour), 101, 2),
	}
	e := newTestEngine(t, Config{MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeWeek)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	// 9 units over 2 distinct days.
	if analysis.AvgDailyVolume != 4.5 {
		t.Errorf("AvgDailyVolume = %v, want 4.5", analysis.AvgDailyVolume)
	}
	// buy volume 6, sell volume 3.
	if analysis.DemandStrength != 2.0 {
		t.Errorf("DemandStrength = %v, want 2.0", analysis.DemandStrength)
	}
}

func TestBestTimesLabels(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	day := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	points := []model.PricePoint{
		sellPoint(day.Add(3*time.Hour), 100, 1),
		sellPoint(day.Add(14*time.Hour), 80, 1), // cheapest sell hour
		buyPoint(day.Add(9*time.Hour), 95, 1),   // highest buy hour
		buyPoint(day.Add(20*time.Hour), 70, 1),
	}
	e := newTestEngine(t, Config{MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeWeek)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if analysis.BestBuyTime != "14:00 UTC" {
		t.Errorf("BestBuyTime = %q, want \"14:00 UTC\"", analysis.BestBuyTime)
	}
	if analysis.BestSellTime != "09:00 UTC" {
		t.Errorf("BestSellTime = %q, want \"09:00 UTC\"", analysis.BestSellTime)
	}
}

func TestSeasonalRelativeDeviation(t *testing.T) {
	// Saturday cheap, Sunday expensive, same counts.
	sat := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	now := sun.Add(12 * time.Hour)
	points := []model.PricePoint{
		sellPoint(sat, 10, 1),
		sellPoint(sat.Add(time.Hour), 10, 1),
		sellPoint(sun, 30, 1),
		sellPoint(sun.Add(time.Hour), 30, 1),
	}
	e := newTestEngine(t, Config{MinDataPoints: 3}, points, now)

	analysis, err := e.Analyze(context.Background(), 1, model.RangeWeek)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("got nil analysis")
	}
	if got := analysis.SeasonalPatterns["Saturday"]; math.Abs(got-(-0.5)) > 1e-9 {
		t.Errorf("Saturday deviation = %v, want -0.5", got)
	}
	if got := analysis.SeasonalPatterns["Sunday"]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Sunday deviation = %v, want 0.5", got)
	}
}

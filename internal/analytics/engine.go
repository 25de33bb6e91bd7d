// Package analytics computes market summaries over persisted price history.
// All computation is pure and read-only; when a window holds too few points
// the engine returns a nil analysis rather than an error.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/storage"
)

// Config holds the analysis thresholds.
type Config struct {
	// OutlierThreshold is the |z-score| at which a price becomes an outlier.
	OutlierThreshold float64
	// PriceChangeThreshold flags consecutive observations whose relative
	// price delta meets or exceeds it.
	PriceChangeThreshold float64
	// MinDataPoints is the minimum window size below which Analyze returns
	// a nil result.
	MinDataPoints int
}

const (
	DefaultOutlierThreshold     = 2.0
	DefaultPriceChangeThreshold = 0.1
	DefaultMinDataPoints        = 10

	// flatSlopeEps is the relative daily slope below which a trend counts
	// as flat.
	flatSlopeEps = 0.001
)

// Engine derives MarketAnalysis results from stored price points.
type Engine struct {
	cfg    Config
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates an engine reading from store. Zero thresholds fall back to
// the defaults.
func New(cfg Config, store storage.Store, logger *slog.Logger) *Engine {
	if cfg.OutlierThreshold <= 0 {
		cfg.OutlierThreshold = DefaultOutlierThreshold
	}
	if cfg.PriceChangeThreshold <= 0 {
		cfg.PriceChangeThreshold = DefaultPriceChangeThreshold
	}
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = DefaultMinDataPoints
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, store: store, logger: logger, now: time.Now}
}

// Analyze computes the market summary for an item over the given range.
// A (nil, nil) return means the window held fewer than MinDataPoints
// observations.
func (e *Engine) Analyze(ctx context.Context, itemID int64, r model.TimeRange) (*model.MarketAnalysis, error) {
	now := e.now().UTC()
	points, err := e.store.QueryPricePoints(ctx, itemID, now.Add(-r.Duration()))
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	if len(points) < e.cfg.MinDataPoints {
		e.logger.Debug("insufficient data for analysis",
			"item_id", itemID, "range", r, "points", len(points))
		return nil, nil
	}

	days := bucketByDay(points)
	trends := dailyTrends(days)

	analysis := &model.MarketAnalysis{
		ItemID:    itemID,
		Range:     r,
		Generated: now,

		PriceTrends:       trends,
		Trend:             e.fitTrend(points, trends),
		MovingAvg7d:       movingAverage(trends, 7),
		MovingAvg30d:      movingAverage(trends, 30),
		AvgDailyVolume:    avgDailyVolume(points, len(days)),
		PriceVolatility:   e.volatility(points),
		MarketSpreadTrend: spreadTrend(trends),
		DemandStrength:    demandStrength(points),
		SeasonalPatterns:  seasonalPatterns(points),
		Outliers:          e.outliers(points),
		RapidChanges:      e.rapidChanges(points),
	}
	analysis.BestBuyTime, analysis.BestSellTime = bestTimes(points)
	return analysis, nil
}

// bucketByDay groups points by UTC calendar day, keyed by midnight.
func bucketByDay(points []model.PricePoint) map[time.Time][]model.PricePoint {
	days := make(map[time.Time][]model.PricePoint)
	for _, p := range points {
		day := p.RecordedAt.UTC().Truncate(24 * time.Hour)
		days[day] = append(days[day], p)
	}
	return days
}

func dailyTrends(days map[time.Time][]model.PricePoint) []model.DailyTrend {
	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	trends := make([]model.DailyTrend, 0, len(dates))
	for _, date := range dates {
		bucket := days[date]
		prices := make([]float64, len(bucket))
		volume := 0
		minSell, maxBuy := math.Inf(1), math.Inf(-1)
		minPrice, maxPrice := math.Inf(1), math.Inf(-1)
		for i, p := range bucket {
			prices[i] = p.Price
			volume += p.Quantity
			minPrice = math.Min(minPrice, p.Price)
			maxPrice = math.Max(maxPrice, p.Price)
			switch p.Side {
			case model.SideSell:
				minSell = math.Min(minSell, p.Price)
			case model.SideBuy:
				maxBuy = math.Max(maxBuy, p.Price)
			}
		}

		trend := model.DailyTrend{
			Date:        date,
			AvgPrice:    mean(prices),
			MedianPrice: median(prices),
			MinPrice:    minPrice,
			MaxPrice:    maxPrice,
			Volatility:  stddev(prices),
			Volume:      volume,
		}
		// Spread needs both sides present on the day.
		if !math.IsInf(minSell, 1) && !math.IsInf(maxBuy, -1) {
			trend.MarketSpread = minSell - maxBuy
		}
		if !math.IsInf(maxBuy, -1) {
			trend.BestBuyPrice = maxBuy
		}
		if !math.IsInf(minSell, 1) {
			trend.BestSellPrice = minSell
		}
		trends = append(trends, trend)
	}
	return trends
}

// movingAverage averages the daily averages over the most recent n days
// that have data.
func movingAverage(trends []model.DailyTrend, n int) float64 {
	if len(trends) == 0 {
		return 0
	}
	if len(trends) > n {
		trends = trends[len(trends)-n:]
	}
	avgs := make([]float64, len(trends))
	for i, t := range trends {
		avgs[i] = t.AvgPrice
	}
	return mean(avgs)
}

// fitTrend regresses price against time and classifies the slope. Strength
// is the relative daily slope scaled by window volatility, bounded to
// [0, 1]; duration is the length of the current monotonic run of daily
// averages.
func (e *Engine) fitTrend(points []model.PricePoint, trends []model.DailyTrend) model.MarketTrend {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	origin := points[0].RecordedAt
	for i, p := range points {
		xs[i] = p.RecordedAt.Sub(origin).Hours() / 24
		ys[i] = p.Price
	}

	meanPrice := mean(ys)
	if meanPrice == 0 {
		return model.MarketTrend{Direction: model.TrendFlat}
	}
	relSlope := slope(xs, ys) / meanPrice

	trend := model.MarketTrend{Direction: model.TrendFlat}
	if relSlope >= flatSlopeEps {
		trend.Direction = model.TrendUp
	} else if relSlope <= -flatSlopeEps {
		trend.Direction = model.TrendDown
	}
	if trend.Direction == model.TrendFlat {
		return trend
	}

	vol := e.volatility(points)
	if vol > 0 {
		trend.Strength = clamp01(math.Abs(relSlope) / vol)
	} else {
		trend.Strength = 1
	}
	trend.Duration = monotonicRun(trends, trend.Direction)
	return trend
}

// monotonicRun measures how long the daily averages have moved strictly in
// the given direction, counting back from the latest day.
func monotonicRun(trends []model.DailyTrend, dir model.TrendDirection) time.Duration {
	if len(trends) < 2 {
		return 0
	}
	start := len(trends) - 1
	for i := len(trends) - 1; i > 0; i-- {
		delta := trends[i].AvgPrice - trends[i-1].AvgPrice
		if (dir == model.TrendUp && delta <= 0) || (dir == model.TrendDown && delta >= 0) {
			break
		}
		start = i - 1
	}
	return trends[len(trends)-1].Date.Sub(trends[start].Date)
}

// volatility is the standard deviation of consecutive price returns,
// normalized by the mean price.
func (e *Engine) volatility(points []model.PricePoint) float64 {
	if len(points) < 3 {
		return 0
	}
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	meanPrice := mean(prices)
	if meanPrice == 0 {
		return 0
	}
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return stddev(returns) / meanPrice
}

func (e *Engine) outliers(points []model.PricePoint) []model.PricePoint {
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	m, sd := mean(prices), stddev(prices)
	if sd == 0 {
		return nil
	}
	var out []model.PricePoint
	for _, p := range points {
		if math.Abs((p.Price-m)/sd) >= e.cfg.OutlierThreshold {
			out = append(out, p)
		}
	}
	return out
}

// rapidChanges flags timestamps where the price jumped by at least the
// change threshold relative to the previous observation.
func (e *Engine) rapidChanges(points []model.PricePoint) []time.Time {
	var flagged []time.Time
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev == 0 {
			continue
		}
		if math.Abs((points[i].Price-prev)/prev) >= e.cfg.PriceChangeThreshold {
			flagged = append(flagged, points[i].RecordedAt)
		}
	}
	return flagged
}

func spreadTrend(trends []model.DailyTrend) []float64 {
	spreads := make([]float64, len(trends))
	for i, t := range trends {
		spreads[i] = t.MarketSpread
	}
	return spreads
}

func avgDailyVolume(points []model.PricePoint, distinctDays int) float64 {
	if distinctDays == 0 {
		return 0
	}
	total := 0
	for _, p := range points {
		total += p.Quantity
	}
	return float64(total) / float64(distinctDays)
}

// bestTimes finds the cheapest hour to buy (minimal average sell price)
// and the best hour to sell (maximal average buy price), labeled as
// "HH:00 UTC".
func bestTimes(points []model.PricePoint) (bestBuy, bestSell string) {
	type hourAgg struct {
		sum   float64
		count int
	}
	sellHours := make(map[int]*hourAgg)
	buyHours := make(map[int]*hourAgg)
	for _, p := range points {
		hours := sellHours
		if p.Side == model.SideBuy {
			hours = buyHours
		}
		h := p.RecordedAt.UTC().Hour()
		agg := hours[h]
		if agg == nil {
			agg = &hourAgg{}
			hours[h] = agg
		}
		agg.sum += p.Price
		agg.count++
	}

	pick := func(hours map[int]*hourAgg, wantMin bool) string {
		best, bestAvg := -1, 0.0
		for h := 0; h < 24; h++ {
			agg, ok := hours[h]
			if !ok {
				continue
			}
			avg := agg.sum / float64(agg.count)
			if best == -1 || (wantMin && avg < bestAvg) || (!wantMin && avg > bestAvg) {
				best, bestAvg = h, avg
			}
		}
		if best == -1 {
			return ""
		}
		return fmt.Sprintf("%02d:00 UTC", best)
	}
	return pick(sellHours, true), pick(buyHours, false)
}

// seasonalPatterns maps each weekday to its average price's relative
// deviation from the overall mean.
func seasonalPatterns(points []model.PricePoint) map[string]float64 {
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	overall := mean(prices)
	if overall == 0 {
		return nil
	}

	sums := make(map[time.Weekday]float64)
	counts := make(map[time.Weekday]int)
	for _, p := range points {
		wd := p.RecordedAt.UTC().Weekday()
		sums[wd] += p.Price
		counts[wd]++
	}

	patterns := make(map[string]float64, len(sums))
	for wd, sum := range sums {
		avg := sum / float64(counts[wd])
		patterns[wd.String()] = (avg - overall) / overall
	}
	return patterns
}

// demandStrength is the ratio of buy volume to sell volume. Zero sell
// volume yields zero rather than dividing by it.
func demandStrength(points []model.PricePoint) float64 {
	buyVol, sellVol := 0, 0
	for _, p := range points {
		if p.Side == model.SideBuy {
			buyVol += p.Quantity
		} else {
			sellVol += p.Quantity
		}
	}
	if sellVol == 0 {
		return 0
	}
	return float64(buyVol) / float64(sellVol)
}

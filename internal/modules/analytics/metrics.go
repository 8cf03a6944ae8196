// Package analytics computes descriptive statistics over user-loaded price
// history. It never fetches data from the network and it is not financial
// advice.
package analytics

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
)

// Window bounds in days. Requests outside the range are clamped.
const (
	MinWindowDays     = 7
	MaxWindowDays     = 3650
	DefaultWindowDays = 90
	DefaultRankLimit  = 20

	tradingDaysPerYear = 252

	smaPeriod = 20
	rsiPeriod = 14
)

// AssetMetrics holds the computed statistics for one asset over a window.
type AssetMetrics struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	N            int     `json:"n"`
	PeriodReturn float64 `json:"period_return"`
	VolAnn       float64 `json:"vol_ann"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`

	// Latest indicator values, zero when the series is too short.
	SMA20 float64 `json:"sma_20,omitempty"`
	RSI14 float64 `json:"rsi_14,omitempty"`
}

// SeriesProvider returns an asset's (date, close) series within an
// end-anchored window.
type SeriesProvider interface {
	Series(assetID int64, windowDays int) ([]assets.Price, error)
}

// AssetLister returns all known assets ordered by symbol.
type AssetLister interface {
	List() ([]assets.Asset, error)
}

// Service ranks assets by risk-adjusted return.
type Service struct {
	series SeriesProvider
	assets AssetLister
	log    zerolog.Logger
}

// NewService creates a new analytics service
func NewService(series SeriesProvider, lister AssetLister, log zerolog.Logger) *Service {
	return &Service{
		series: series,
		assets: lister,
		log:    log.With().Str("service", "analytics").Logger(),
	}
}

// ClampWindow bounds a requested window to the supported range, substituting
// the default for non-positive values.
func ClampWindow(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days < MinWindowDays {
		return MinWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

// ComputeMetrics calculates the metrics for one asset over the window ending
// at its last known date. Returns nil when the series is too short: fewer
// than two prices, or fewer than two computable daily returns.
func (s *Service) ComputeMetrics(a assets.Asset, windowDays int) (*AssetMetrics, error) {
	series, err := s.series.Series(a.ID, windowDays)
	if err != nil {
		return nil, err
	}
	if len(series) < 2 {
		return nil, nil
	}

	prices := make([]float64, len(series))
	for i, p := range series {
		prices[i] = p.Close
	}

	rets := dailyReturns(prices)
	if len(rets) < 2 {
		return nil, nil
	}

	avg := stat.Mean(rets, nil)
	volAnn := stat.PopStdDev(rets, nil) * math.Sqrt(tradingDaysPerYear)

	sharpe := 0.0
	if volAnn > 1e-12 {
		sharpe = (avg * tradingDaysPerYear) / volAnn
	}

	m := &AssetMetrics{
		Symbol:       a.Symbol,
		Name:         a.Name,
		Start:        series[0].Date,
		End:          series[len(series)-1].Date,
		N:            len(prices),
		PeriodReturn: prices[len(prices)-1]/prices[0] - 1.0,
		VolAnn:       volAnn,
		Sharpe:       sharpe,
		MaxDrawdown:  maxDrawdown(prices),
	}

	if len(prices) > smaPeriod {
		sma := talib.Sma(prices, smaPeriod)
		m.SMA20 = sma[len(sma)-1]
	}
	if len(prices) > rsiPeriod {
		rsi := talib.Rsi(prices, rsiPeriod)
		m.RSI14 = rsi[len(rsi)-1]
	}

	return m, nil
}

// RankAssets computes metrics for every asset and ranks them by Sharpe
// descending, then period return descending. Assets with too little history
// are skipped; a per-asset computation failure is logged and skipped so one
// bad series never empties the ranking.
func (s *Service) RankAssets(windowDays, limit int) ([]AssetMetrics, error) {
	windowDays = ClampWindow(windowDays)
	if limit <= 0 {
		limit = DefaultRankLimit
	}

	all, err := s.assets.List()
	if err != nil {
		return nil, err
	}

	ranked := make([]AssetMetrics, 0, len(all))
	for _, a := range all {
		m, err := s.ComputeMetrics(a, windowDays)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", a.Symbol).Msg("Metrics computation failed")
			continue
		}
		if m == nil {
			continue
		}
		ranked = append(ranked, *m)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Sharpe != ranked[j].Sharpe {
			return ranked[i].Sharpe > ranked[j].Sharpe
		}
		return ranked[i].PeriodReturn > ranked[j].PeriodReturn
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// dailyReturns computes simple daily returns, skipping zero denominators.
func dailyReturns(prices []float64) []float64 {
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		rets = append(rets, prices[i]/prices[i-1]-1.0)
	}
	return rets
}

// maxDrawdown returns the worst peak-to-trough decline as a negative
// fraction, 0 when prices never fall below a running peak.
func maxDrawdown(prices []float64) float64 {
	peak := prices[0]
	maxDD := 0.0
	for _, p := range prices[1:] {
		if p > peak {
			peak = p
		}
		if dd := p/peak - 1.0; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

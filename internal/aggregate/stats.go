// Package aggregate computes windowed statistics over stored readings.
// Statistics are recomputed per query; results are pure functions of the
// selected rows, so a cache keyed on (window, latest row id) can be added in
// front of the engine without changing the contract.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/afroash/airmon/internal/models"
)

// ErrNoData is returned when the selected window contains no rows. An empty
// window is reported explicitly, never as zero-valued statistics.
var ErrNoData = errors.New("no data in window")

// Metric names used in correlation pairs.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricGasRaw      = "gas_raw"
)

// Window selects a bounded slice of stored readings. Exactly one selector
// should be set; the zero value selects every row.
type Window struct {
	LastN    int           // last N rows by row id
	Duration time.Duration // rows received within the last Duration
}

func (w Window) String() string {
	switch {
	case w.LastN > 0:
		return fmt.Sprintf("last %d rows", w.LastN)
	case w.Duration > 0:
		return fmt.Sprintf("last %s", w.Duration)
	default:
		return "all rows"
	}
}

// MetricStats holds min/max/mean for a single metric. Count is the number of
// rows where the metric was valid; faulted values are excluded from their own
// metric without discarding the row.
type MetricStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Correlation is the Pearson coefficient between two metrics, computed only
// over rows where both are valid. Coefficient is nil (undefined) when fewer
// than 2 such rows exist or either metric has zero variance; it is never
// coerced to 0.
type Correlation struct {
	MetricX     string   `json:"metric_x"`
	MetricY     string   `json:"metric_y"`
	Samples     int      `json:"samples"`
	Coefficient *float64 `json:"coefficient"`
}

// WindowStats is the result of one stats query.
type WindowStats struct {
	Window        string        `json:"window"`
	Rows          int           `json:"rows"`
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	Temperature   *MetricStats  `json:"temperature"`
	Humidity      *MetricStats  `json:"humidity"`
	GasRaw        *MetricStats  `json:"gas_raw"`
	GasAlarmCount int           `json:"gas_alarm_count"`
	Correlations  []Correlation `json:"correlations"`
}

// Source is the read surface the engine needs from the store.
type Source interface {
	Query(limit int) ([]*models.StoredReading, error)
	QueryRange(start, end time.Time) ([]*models.StoredReading, error)
}

// Engine computes statistics on demand from a reading source. Reads are
// snapshots of the store's current state; no isolation beyond that is
// assumed.
type Engine struct {
	source Source
	now    func() time.Time
}

// NewEngine creates an aggregation engine over the given source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source, now: time.Now}
}

// Stats computes windowed statistics. Returns ErrNoData when the window
// selects no rows.
func (e *Engine) Stats(window Window) (*WindowStats, error) {
	rows, err := e.selectRows(window)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	stats := &WindowStats{
		Window: window.String(),
		Rows:   len(rows),
		From:   rows[0].ReceivedAt,
		To:     rows[0].ReceivedAt,
	}

	var temps, hums, gas series
	for _, r := range rows {
		if r.ReceivedAt.Before(stats.From) {
			stats.From = r.ReceivedAt
		}
		if r.ReceivedAt.After(stats.To) {
			stats.To = r.ReceivedAt
		}
		// A row with a faulted temperature still contributes its gas value.
		temps.add(r.Temperature)
		hums.add(r.Humidity)
		gas.add(models.Float64(float64(r.GasRaw)))
		if r.GasDigital {
			stats.GasAlarmCount++
		}
	}

	stats.Temperature = temps.stats()
	stats.Humidity = hums.stats()
	stats.GasRaw = gas.stats()
	stats.Correlations = []Correlation{
		correlate(MetricTemperature, MetricHumidity, temps, hums),
		correlate(MetricTemperature, MetricGasRaw, temps, gas),
		correlate(MetricHumidity, MetricGasRaw, hums, gas),
	}

	return stats, nil
}

func (e *Engine) selectRows(window Window) ([]*models.StoredReading, error) {
	switch {
	case window.LastN > 0:
		return e.source.Query(window.LastN)
	case window.Duration > 0:
		end := e.now()
		return e.source.QueryRange(end.Add(-window.Duration), end)
	default:
		return e.source.Query(0)
	}
}

// series accumulates one metric across a window, keeping per-row validity so
// correlations can pair rows up.
type series struct {
	values []float64 // aligned with rows; NaN marks an invalid value
	valid  int
	sum    float64
	min    float64
	max    float64
}

func (s *series) add(v *float64) {
	if v == nil {
		s.values = append(s.values, math.NaN())
		return
	}
	s.values = append(s.values, *v)
	if s.valid == 0 || *v < s.min {
		s.min = *v
	}
	if s.valid == 0 || *v > s.max {
		s.max = *v
	}
	s.sum += *v
	s.valid++
}

// stats returns nil when the series has no valid samples, so an all-faulted
// metric reports as absent rather than all-zero.
func (s *series) stats() *MetricStats {
	if s.valid == 0 {
		return nil
	}
	return &MetricStats{
		Count: s.valid,
		Min:   s.min,
		Max:   s.max,
		Mean:  s.sum / float64(s.valid),
	}
}

// correlate computes the Pearson coefficient over rows where both metrics
// are valid.
func correlate(nameX, nameY string, x, y series) Correlation {
	var xs, ys []float64
	for i := range x.values {
		if math.IsNaN(x.values[i]) || math.IsNaN(y.values[i]) {
			continue
		}
		xs = append(xs, x.values[i])
		ys = append(ys, y.values[i])
	}

	c := Correlation{MetricX: nameX, MetricY: nameY, Samples: len(xs)}
	if len(xs) < 2 {
		return c
	}

	meanX, meanY := mean(xs), mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		// Constant series: correlation is undefined, not 0.
		return c
	}

	r := cov / (math.Sqrt(varX) * math.Sqrt(varY))
	c.Coefficient = &r
	return c
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// Package consistency computes lap time statistics of a session.
package consistency

import (
	"math"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
)

type Trend string

const (
	Improving        Trend = "improving"
	Declining        Trend = "declining"
	Stable           Trend = "stable"
	InsufficientData Trend = "insufficient_data"
)

type (
	Summary struct {
		BestLapTimeMs    int64
		AverageLapTimeMs int64
		TotalLaps        int
		LapTimesMs       []int64
		// 0..100, 100 means no deviation at all
		ConsistencyScore float64
		Trend            Trend
	}

	Bar struct {
		LapID     int64
		LapNumber int64
		TimeS     float64
		Selected  bool
	}

	// Chart holds the bars and a tight value range around the lap times
	Chart struct {
		Bars []Bar
		Min  float64
		Max  float64
	}
)

// counted returns the laps taking part in the statistics: valid laps with a
// positive lap time, in the given order
func counted(laps []*model.Lap) []*model.Lap {
	return lo.Filter(laps, func(l *model.Lap, _ int) bool {
		return l != nil && l.Valid && l.LapTimeMs > 0
	})
}

// Bars returns a bar per counted lap. The range is widened by 2% on each side.
func Bars(laps []*model.Lap, selected []int64) Chart {
	bars := lo.Map(counted(laps), func(l *model.Lap, _ int) Bar {
		return Bar{
			LapID:     l.ID,
			LapNumber: l.LapNumber,
			TimeS:     float64(l.LapTimeMs) / 1000,
			Selected:  slices.Contains(selected, l.ID),
		}
	})
	if len(bars) == 0 {
		return Chart{}
	}
	times := lo.Map(bars, func(b Bar, _ int) float64 { return b.TimeS })
	return Chart{
		Bars: bars,
		Min:  lo.Min(times) * 0.98,
		Max:  lo.Max(times) * 1.02,
	}
}

// Summarize computes the statistics over the counted laps in the given order.
func Summarize(laps []*model.Lap) Summary {
	times := lo.Map(counted(laps), func(l *model.Lap, _ int) int64 { return l.LapTimeMs })
	ret := Summary{LapTimesMs: times, TotalLaps: len(times), Trend: InsufficientData}
	if len(times) == 0 {
		return ret
	}
	values := lo.Map(times, func(t int64, _ int) float64 { return float64(t) })

	ret.BestLapTimeMs = lo.Min(times)
	ret.AverageLapTimeMs = int64(stat.Mean(values, nil))
	ret.ConsistencyScore = 100
	if len(values) > 1 {
		// 5s standard deviation results in a score of 0
		score := 100 - stat.StdDev(values, nil)/50
		ret.ConsistencyScore = math.Round(math.Max(0, math.Min(100, score))*100) / 100
	}
	ret.Trend = trend(values)
	return ret
}

// trend compares the first and the last third of the lap times.
// A change of more than 2% counts as improving or declining.
func trend(values []float64) Trend {
	n := len(values)
	if n < 3 {
		return InsufficientData
	}
	first := stat.Mean(values[:n/3], nil)
	last := stat.Mean(values[n-(n+2)/3:], nil)
	switch {
	case last < first*0.98:
		return Improving
	case last > first*1.02:
		return Declining
	default:
		return Stable
	}
}

// Package align resamples laps onto a common distance grid.
//
// Every lap is recorded with its own, irregular sample spacing. To compare
// laps point by point the channels of each lap are linearly interpolated at
// fixed distance steps starting at 0 up to the longest lap. Before the first
// and after the last sample of a lap the boundary sample is used, values are
// never extrapolated.
package align

import (
	"math"
	"sort"
	"strconv"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
)

const (
	// DefaultStep is the grid spacing in meters
	DefaultStep = 5.0
	// MinStep is the smallest accepted grid spacing in meters
	MinStep = 0.01
	// MaxRows bounds the grid size. The step is widened if a lap is too long
	// for the requested spacing.
	MaxRows = 1_000_000
)

type (
	// Channels holds the interpolated values of one lap at one grid point
	Channels struct {
		SpeedKmh    float64
		RPM         float64
		ThrottlePct float64
		BrakePct    float64
		SteeringPct float64
	}

	// Row is one grid point. Laps contains an entry for every lap with samples.
	Row struct {
		Distance float64
		Laps     map[int64]Channels
	}

	Option func(*config)

	config struct {
		step float64
	}
)

// WithStep sets the grid spacing. Values below MinStep are ignored.
func WithStep(step float64) Option {
	return func(c *config) {
		if step >= MinStep && !math.IsInf(step, 0) {
			c.step = step
		}
	}
}

// Align builds the common grid for series. Series without samples do not
// contribute. If no series has samples or all of them end at distance 0 the
// result is empty.
func Align(series []*model.LapSeries, opts ...Option) []Row {
	cfg := &config{step: DefaultStep}
	for _, opt := range opts {
		opt(cfg)
	}

	cursors := make([]*cursor, 0, len(series))
	maxDistance := 0.0
	for _, s := range series {
		if s.Empty() {
			continue
		}
		cursors = append(cursors, &cursor{lapID: s.LapID, samples: s.Samples})
		maxDistance = math.Max(maxDistance, s.Length())
	}
	if len(cursors) == 0 || maxDistance <= 0 || math.IsInf(maxDistance, 0) {
		return nil
	}
	step := gridStep(maxDistance, cfg.step)
	steps := int(math.Ceil(maxDistance / step))
	rows := make([]Row, 0, steps+1)
	for i := 0; i <= steps; i++ {
		d := float64(i) * step
		row := Row{Distance: d, Laps: make(map[int64]Channels, len(cursors))}
		for _, c := range cursors {
			row.Laps[c.lapID] = c.at(d)
		}
		rows = append(rows, row)
	}
	return rows
}

// gridStep widens step so that the grid up to maxDistance has at most
// MaxRows+1 rows
func gridStep(maxDistance, step float64) float64 {
	if maxDistance/step > MaxRows {
		return maxDistance / MaxRows
	}
	return step
}

// Interpolate returns the channel values of samples at distance d. samples
// must be ordered by distance. ok is false if samples is empty.
// Uses binary search, intended for single lookups. Align uses a cursor instead.
func Interpolate(samples []model.TelemetrySample, d float64) (ret Channels, ok bool) {
	n := len(samples)
	if n == 0 {
		return Channels{}, false
	}
	if d <= samples[0].DistanceM {
		return channelsOf(&samples[0]), true
	}
	if d >= samples[n-1].DistanceM {
		return channelsOf(&samples[n-1]), true
	}
	// first sample beyond d, the one before is the last sample at or before d
	hi := sort.Search(n, func(i int) bool { return samples[i].DistanceM > d })
	return lerp(&samples[hi-1], &samples[hi], d), true
}

// cursor walks through the samples of one lap for increasing distances.
type cursor struct {
	lapID   int64
	samples []model.TelemetrySample
	idx     int // last sample with DistanceM <= requested distance
}

// at returns the values at d. d must not decrease between calls.
func (c *cursor) at(d float64) Channels {
	n := len(c.samples)
	if d <= c.samples[0].DistanceM {
		return channelsOf(&c.samples[0])
	}
	if d >= c.samples[n-1].DistanceM {
		return channelsOf(&c.samples[n-1])
	}
	// skipping equal distances makes the later sample authoritative
	for c.idx+1 < n && c.samples[c.idx+1].DistanceM <= d {
		c.idx++
	}
	return lerp(&c.samples[c.idx], &c.samples[c.idx+1], d)
}

// lerp interpolates between p1 and p2 with p1.DistanceM <= d < p2.DistanceM
func lerp(p1, p2 *model.TelemetrySample, d float64) Channels {
	ratio := (d - p1.DistanceM) / (p2.DistanceM - p1.DistanceM)
	f := func(a, b float64) float64 { return a + (b-a)*ratio }
	return Channels{
		SpeedKmh:    f(p1.SpeedKmh, p2.SpeedKmh),
		RPM:         f(p1.RPM, p2.RPM),
		ThrottlePct: f(p1.ThrottlePct, p2.ThrottlePct),
		BrakePct:    f(p1.BrakePct, p2.BrakePct),
		SteeringPct: f(p1.SteeringPct, p2.SteeringPct),
	}
}

func channelsOf(s *model.TelemetrySample) Channels {
	return Channels{
		SpeedKmh:    s.SpeedKmh,
		RPM:         s.RPM,
		ThrottlePct: s.ThrottlePct,
		BrakePct:    s.BrakePct,
		SteeringPct: s.SteeringPct,
	}
}

// Flatten returns the row as flat map as used by charting front ends:
// "distance" plus "speed_<lap>", "rpm_<lap>", "throttle_<lap>", "brake_<lap>"
// and "steering_<lap>" for each lap of the row.
func (r *Row) Flatten() map[string]any {
	ret := make(map[string]any, 1+5*len(r.Laps))
	ret["distance"] = r.Distance
	for id, ch := range r.Laps {
		suffix := "_" + strconv.FormatInt(id, 10)
		ret["speed"+suffix] = ch.SpeedKmh
		ret["rpm"+suffix] = ch.RPM
		ret["throttle"+suffix] = ch.ThrottlePct
		ret["brake"+suffix] = ch.BrakePct
		ret["steering"+suffix] = ch.SteeringPct
	}
	return ret
}

// Columns returns the column names of a flattened row for lapIDs in the
// given order, starting with "distance".
func Columns(lapIDs []int64) []string {
	ret := []string{"distance"}
	for _, id := range lapIDs {
		suffix := "_" + strconv.FormatInt(id, 10)
		ret = append(ret,
			"speed"+suffix, "rpm"+suffix, "throttle"+suffix, "brake"+suffix, "steering"+suffix)
	}
	return ret
}

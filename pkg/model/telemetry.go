package model

// TelemetrySample is one recorded instant along a lap.
// Within a lap the samples are ordered by non-decreasing DistanceM.
//
//nolint:tagliatelle // field names are defined by the telemetry API
type TelemetrySample struct {
	DistanceM   float64  `json:"distance_m"`
	TimeS       float64  `json:"time_s"`
	SpeedKmh    float64  `json:"speed_kmh"`
	ThrottlePct float64  `json:"throttle_pct"`
	BrakePct    float64  `json:"brake_pct"`
	SteeringPct float64  `json:"steering_pct"`
	Gear        int64    `json:"gear"`
	RPM         float64  `json:"rpm"`
	GLat        *float64 `json:"g_lat,omitempty"`
	GLong       *float64 `json:"g_long,omitempty"`
}

// LapSeries holds the samples of a single lap.
// Once stored in the telemetry cache a LapSeries must not be modified.
type LapSeries struct {
	LapID     int64
	LapNumber int64
	Samples   []TelemetrySample
}

func (s *LapSeries) Empty() bool {
	return s == nil || len(s.Samples) == 0
}

// Length returns the distance of the last sample, 0 for empty series.
func (s *LapSeries) Length() float64 {
	if s.Empty() {
		return 0
	}
	return s.Samples[len(s.Samples)-1].DistanceM
}

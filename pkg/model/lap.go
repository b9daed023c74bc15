package model

import "strconv"

//nolint:tagliatelle // field names are defined by the telemetry API
type Lap struct {
	ID                   int64  `json:"id"`
	SessionID            *int64 `json:"session_id,omitempty"`
	LapNumber            int64  `json:"lap_number"`
	LapTimeMs            int64  `json:"lap_time_ms"`
	Sector1Ms            *int64 `json:"sector1_ms,omitempty"`
	Sector2Ms            *int64 `json:"sector2_ms,omitempty"`
	Sector3Ms            *int64 `json:"sector3_ms,omitempty"`
	Sector4Ms            *int64 `json:"sector4_ms,omitempty"`
	Valid                bool   `json:"valid"`
	DriverName           string `json:"driver_name,omitempty"`
	TrackName            string `json:"track_name,omitempty"`
	HasDetailedTelemetry bool   `json:"has_detailed_telemetry"`
}

// LapTimeString formats the lap time as m:ss.SSS
func (l *Lap) LapTimeString() string {
	ms := l.LapTimeMs
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	rest := ms % 60000
	secs := strconv.FormatInt(rest/1000, 10)
	if len(secs) < 2 {
		secs = "0" + secs
	}
	frac := strconv.FormatInt(rest%1000, 10)
	for len(frac) < 3 {
		frac = "0" + frac
	}
	return itoa(minutes) + ":" + secs + "." + frac
}

func itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}

package model

//nolint:tagliatelle // field names are defined by the telemetry API
type Track struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location,omitempty"`
	Country      string   `json:"country,omitempty"`
	LengthMeters *float64 `json:"length_meters,omitempty"`
}

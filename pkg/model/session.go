package model

// Session is a driving session as delivered by the telemetry API.
//
//nolint:tagliatelle // field names are defined by the telemetry API
type Session struct {
	ID            int64  `json:"id"`
	TeamID        int64  `json:"team_id"`
	DriverID      int64  `json:"driver_id"`
	TrackID       int64  `json:"track_id"`
	KartID        *int64 `json:"kart_id,omitempty"`
	SessionDate   string `json:"session_date"`
	SessionType   string `json:"session_type,omitempty"`
	DataSource    string `json:"data_source,omitempty"`
	BestLapTimeMs *int64 `json:"best_lap_time_ms,omitempty"`
	TotalLaps     *int64 `json:"total_laps,omitempty"`
	Track         *Track `json:"track,omitempty"`
}

// DisplayName returns the track name if known, "Session <id>" otherwise.
func (s *Session) DisplayName() string {
	if s.Track != nil && s.Track.Name != "" {
		return s.Track.Name
	}
	return "Session " + itoa(s.ID)
}

package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	APIURL            string // base URL of the telemetry API
	APIToken          string // bearer token for the telemetry API
	APITimeout        string // timeout for a single API request
	WaitForServices   string // duration to wait for the API to be ready
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, for example "*:*,-cache"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry, "stdout" writes to stdout
)

// Config holds the configuration values which are used by the analysis commands
type Config struct {
	SessionID *int64  // session to analyze, most recent if nil
	LapIDs    []int64 // laps to toggle after the default selection
	ValidOnly bool    // request only valid laps
	Step      float64 // grid spacing in meters
	Format    string  // output format
}

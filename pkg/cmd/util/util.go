// Package util contains the setup shared by the ktm commands.
package util

import (
	"context"
	"io"
	"time"

	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/config"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider/api"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/utils"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// ParseDuration returns defaultVal if v is not a valid duration
func ParseDuration(v string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("Invalid duration value. Using default",
			log.String("value", v),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return d
}

// SetupLogger creates the logger from the log settings, installs it as
// default logger and returns ctx carrying it.
//
//nolint:whitespace // readability
func SetupLogger(
	ctx context.Context,
	writer io.Writer,
) (context.Context, *log.Logger, error) {
	defaultLevel := log.InfoLevel
	if config.LogFormat != "json" {
		defaultLevel = log.DebugLevel
	}
	logger, err := log.NewWithFilter(
		writer,
		ParseLogLevel(config.LogLevel, defaultLevel),
		config.LogFormat,
		config.LogFilter,
		log.WithCaller(true),
		log.AddCallerSkip(1))
	if err != nil {
		return ctx, nil, err
	}
	log.ResetDefault(logger)
	return log.AddToContext(ctx, logger), logger, nil
}

// SetupTelemetry starts exporting traces and metrics if enabled.
// The returned function stops the exporters and is never nil.
func SetupTelemetry(ctx context.Context) func() {
	if !config.EnableTelemetry {
		return func() {}
	}
	logger := log.GetFromContext(ctx)
	logger.Info("Enabling telemetry", log.String("endpoint", config.TelemetryEndpoint))
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		logger.Warn("Could not setup telemetry", log.ErrorField(err))
		return func() {}
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		logger.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Could not shutdown telemetry", log.ErrorField(err))
		}
	}
}

// NewProvider waits for the telemetry API (if configured) and returns a
// client for it.
func NewProvider(ctx context.Context) (*api.Client, error) {
	logger := log.GetFromContext(ctx)
	if timeout := ParseDuration(config.WaitForServices, 0); timeout > 0 {
		addr := utils.ExtractFromHTTPURL(config.APIURL)
		logger.Debug("waiting for api", log.String("addr", addr))
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			return nil, err
		}
		if err := utils.WaitForHTTPResponse(config.APIURL, timeout); err != nil {
			return nil, err
		}
	}
	return api.New(config.APIURL,
		api.WithToken(config.APIToken),
		api.WithTimeout(ParseDuration(config.APITimeout, 30*time.Second)),
		api.WithLogger(logger.Named("provider.api")))
}

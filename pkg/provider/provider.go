// Package provider defines the source of sessions, laps and lap telemetry.
// The data is owned by the remote telemetry API; nothing in here persists it.
package provider

import (
	"context"
	"errors"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

type Provider interface {
	// ListSessions returns the sessions, most recent first.
	ListSessions(ctx context.Context) ([]*model.Session, error)
	ListLaps(ctx context.Context, sessionID int64, validOnly bool) ([]*model.Lap, error)
	// GetLapTelemetry returns the samples ordered by distance. May be empty.
	GetLapTelemetry(ctx context.Context, lapID int64) ([]model.TelemetrySample, error)
}

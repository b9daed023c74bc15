// Package fakeprovider contains an in-memory provider.Provider for tests.
package fakeprovider

import (
	"context"
	"fmt"
	"sync"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider"
)

type Provider struct {
	mu        sync.Mutex
	Sessions  []*model.Session
	Laps      map[int64][]*model.Lap // by session id
	Telemetry map[int64][]model.TelemetrySample
	Failing   map[int64]error
	// Gates block GetLapTelemetry for a lap until the channel is closed
	Gates map[int64]chan struct{}
	// SessionErr and LapsErr are returned by the list calls if set
	SessionErr error
	LapsErr    error

	calls map[int64]int
}

var _ provider.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		Laps:      map[int64][]*model.Lap{},
		Telemetry: map[int64][]model.TelemetrySample{},
		Failing:   map[int64]error{},
		Gates:     map[int64]chan struct{}{},
		calls:     map[int64]int{},
	}
}

func (p *Provider) ListSessions(ctx context.Context) ([]*model.Session, error) {
	if p.SessionErr != nil {
		return nil, p.SessionErr
	}
	return p.Sessions, nil
}

//nolint:whitespace // readability
func (p *Provider) ListLaps(
	ctx context.Context,
	sessionID int64,
	validOnly bool,
) ([]*model.Lap, error) {
	if p.LapsErr != nil {
		return nil, p.LapsErr
	}
	ret := []*model.Lap{}
	for _, l := range p.Laps[sessionID] {
		if validOnly && !l.Valid {
			continue
		}
		ret = append(ret, l)
	}
	return ret, nil
}

//nolint:whitespace // readability
func (p *Provider) GetLapTelemetry(
	ctx context.Context,
	lapID int64,
) ([]model.TelemetrySample, error) {
	p.mu.Lock()
	p.calls[lapID]++
	gate := p.Gates[lapID]
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := p.Failing[lapID]; ok {
		return nil, err
	}
	if data, ok := p.Telemetry[lapID]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("lap %d: %w", lapID, provider.ErrNotFound)
}

// Calls returns how often the telemetry of lapID was requested.
func (p *Provider) Calls(lapID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[lapID]
}

// Samples builds samples with the given distances and speeds.
// Other channels are derived from the speed.
func Samples(distances, speeds []float64) []model.TelemetrySample {
	ret := make([]model.TelemetrySample, len(distances))
	for i := range distances {
		ret[i] = model.TelemetrySample{
			DistanceM:   distances[i],
			TimeS:       float64(i),
			SpeedKmh:    speeds[i],
			RPM:         speeds[i] * 100,
			ThrottlePct: speeds[i] / 2,
			BrakePct:    100 - speeds[i]/2,
			Gear:        3,
		}
	}
	return ret
}

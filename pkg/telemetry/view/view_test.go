//nolint:funlen // ok for tests
package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/align"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/selection"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/utils/cache/memcache"
	"github.com/mpapenbr/kartlog-telemetry-go/testsupport/fakeprovider"
)

// session 2 (most recent): laps 21 (fastest), 22, 23, 24 (invalid)
// session 1: laps 11, 12
func setupProvider() *fakeprovider.Provider {
	p := fakeprovider.New()
	p.Sessions = []*model.Session{{ID: 2}, {ID: 1}}
	p.Laps[2] = []*model.Lap{
		{ID: 22, LapNumber: 2, LapTimeMs: 46000, Valid: true},
		{ID: 21, LapNumber: 1, LapTimeMs: 45000, Valid: true},
		{ID: 23, LapNumber: 3, LapTimeMs: 47000, Valid: true},
		{ID: 24, LapNumber: 4, LapTimeMs: 30000, Valid: false},
	}
	p.Laps[1] = []*model.Lap{
		{ID: 11, LapNumber: 1, LapTimeMs: 50000, Valid: true},
		{ID: 12, LapNumber: 2, LapTimeMs: 49000, Valid: true},
	}
	p.Telemetry[21] = fakeprovider.Samples([]float64{0, 10, 20}, []float64{100, 120, 140})
	p.Telemetry[22] = fakeprovider.Samples([]float64{0, 15, 30}, []float64{90, 110, 130})
	p.Telemetry[23] = fakeprovider.Samples([]float64{0, 40}, []float64{80, 80})
	p.Telemetry[11] = fakeprovider.Samples([]float64{0, 10}, []float64{70, 75})
	p.Telemetry[12] = fakeprovider.Samples([]float64{0, 10}, []float64{60, 65})
	return p
}

func waitIdle(t *testing.T, v *View) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, v.Wait(ctx))
}

func lapsOf(rows []align.Row) []int64 {
	if len(rows) == 0 {
		return nil
	}
	ret := []int64{}
	for id := range rows[0].Laps {
		ret = append(ret, id)
	}
	return ret
}

func TestOpenSelectsFastestLapOfLatestSession(t *testing.T) {
	p := setupProvider()
	v := New(p)
	defer v.Close()

	require.NoError(t, v.Open(context.Background(), nil))
	waitIdle(t, v)

	s := v.State()
	assert.Equal(t, selection.Ready, s.Phase)
	assert.Equal(t, int64(2), s.SessionID)
	// invalid laps are not requested
	assert.Len(t, s.Laps, 3)
	assert.Equal(t, []int64{21}, s.Selected)

	grid := v.Grid()
	require.Len(t, grid, 5)
	assert.Equal(t, []int64{21}, lapsOf(grid))
	assert.False(t, v.Loading())
}

func TestCompareLaps(t *testing.T) {
	p := setupProvider()
	v := New(p)
	defer v.Close()
	require.NoError(t, v.Open(context.Background(), nil))
	assert.True(t, v.Toggle(22))
	waitIdle(t, v)

	grid := v.Grid()
	require.Len(t, grid, 7)
	assert.ElementsMatch(t, []int64{21, 22}, lapsOf(grid))
	assert.InDelta(t, 110.0, grid[1].Laps[21].SpeedKmh, 1e-9)
	assert.InDelta(t, 96.67, grid[1].Laps[22].SpeedKmh, 0.01)
	assert.InDelta(t, 140.0, grid[5].Laps[21].SpeedKmh, 1e-9)
	assert.InDelta(t, 123.33, grid[5].Laps[22].SpeedKmh, 0.01)

	assert.Equal(t, []SeriesInfo{
		{LapID: 21, LapNumber: 1, Color: "#3b82f6", Samples: 3, Available: true},
		{LapID: 22, LapNumber: 2, Color: "#ef4444", Samples: 3, Available: true},
	}, v.Series())

	// deselecting recomputes the grid
	assert.True(t, v.Toggle(21))
	grid = v.Grid()
	require.Len(t, grid, 7)
	assert.Equal(t, []int64{22}, lapsOf(grid))
}

func TestFailedFetchDoesNotHideOtherLaps(t *testing.T) {
	p := setupProvider()
	p.Failing[22] = errors.New("remote error")
	v := New(p)
	defer v.Close()
	require.NoError(t, v.Open(context.Background(), nil))
	v.Toggle(22)
	v.Toggle(23)
	waitIdle(t, v)

	grid := v.Grid()
	require.Len(t, grid, 9) // lap 23 is 40m long
	assert.ElementsMatch(t, []int64{21, 23}, lapsOf(grid))

	series := v.Series()
	require.Len(t, series, 3)
	assert.False(t, series[1].Available)
	assert.Equal(t, 0, series[1].Samples)
	assert.Equal(t, 1, p.Calls(22))
}

func TestReselectUsesCache(t *testing.T) {
	p := setupProvider()
	v := New(p)
	defer v.Close()
	require.NoError(t, v.Open(context.Background(), nil))
	v.Toggle(22)
	waitIdle(t, v)

	v.Toggle(22)
	v.Toggle(22)
	waitIdle(t, v)
	assert.Equal(t, 1, p.Calls(22))
	assert.ElementsMatch(t, []int64{21, 22}, lapsOf(v.Grid()))
}

func TestLoadingWhileFetching(t *testing.T) {
	p := setupProvider()
	gate := make(chan struct{})
	p.Gates[22] = gate
	v := New(p)
	defer v.Close()
	require.NoError(t, v.Open(context.Background(), nil))
	waitIdle(t, v)

	require.True(t, v.Toggle(22))
	// reported as soon as Toggle returns
	assert.True(t, v.Loading())
	assert.True(t, v.Series()[1].Pending)
	// partial result while lap 22 is outstanding
	assert.Equal(t, []int64{21}, lapsOf(v.Grid()))

	close(gate)
	waitIdle(t, v)
	assert.False(t, v.Loading())
	assert.ElementsMatch(t, []int64{21, 22}, lapsOf(v.Grid()))
}

func TestLoadingRightAfterOpen(t *testing.T) {
	p := setupProvider()
	gate := make(chan struct{})
	p.Gates[21] = gate
	v := New(p)
	defer v.Close()

	require.NoError(t, v.Open(context.Background(), nil))
	assert.True(t, v.Loading())
	require.Len(t, v.Series(), 1)
	assert.True(t, v.Series()[0].Pending)
	assert.False(t, v.Series()[0].Available)
	assert.Empty(t, v.Grid())

	close(gate)
	waitIdle(t, v)
	assert.False(t, v.Loading())
	assert.Equal(t, []int64{21}, lapsOf(v.Grid()))
}

func TestSessionSwitchDropsStaleResults(t *testing.T) {
	p := setupProvider()
	gate := make(chan struct{})
	p.Gates[21] = gate
	c := memcache.New[int64, model.LapSeries]()
	v := New(p, WithCache(c))
	defer v.Close()

	require.NoError(t, v.Open(context.Background(), nil))
	require.Eventually(t, func() bool { return p.Calls(21) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, v.SwitchSession(context.Background(), 1))
	close(gate)
	waitIdle(t, v)

	assert.False(t, c.Has(context.Background(), 21))
	s := v.State()
	assert.Equal(t, int64(1), s.SessionID)
	assert.Equal(t, []int64{12}, s.Selected)
	assert.Equal(t, []int64{12}, lapsOf(v.Grid()))
}

func TestEmptySession(t *testing.T) {
	p := setupProvider()
	p.Laps[3] = []*model.Lap{{ID: 31, LapNumber: 1, LapTimeMs: 1000, Valid: false}}
	v := New(p)
	defer v.Close()

	session := int64(3)
	require.NoError(t, v.Open(context.Background(), &session))
	waitIdle(t, v)
	assert.Empty(t, v.State().Selected)
	assert.Empty(t, v.Grid())
	assert.False(t, v.Loading())
}

func TestOpenErrors(t *testing.T) {
	t.Run("no sessions", func(t *testing.T) {
		p := setupProvider()
		p.Sessions = nil
		v := New(p)
		defer v.Close()
		assert.ErrorIs(t, v.Open(context.Background(), nil), ErrNoSession)
		assert.Equal(t, selection.NoSession, v.State().Phase)
	})
	t.Run("list sessions fails", func(t *testing.T) {
		p := setupProvider()
		p.SessionErr = errors.New("api down")
		v := New(p)
		defer v.Close()
		assert.ErrorIs(t, v.Open(context.Background(), nil), p.SessionErr)
	})
	t.Run("list laps fails", func(t *testing.T) {
		p := setupProvider()
		p.LapsErr = errors.New("api down")
		v := New(p)
		defer v.Close()
		assert.ErrorIs(t, v.Open(context.Background(), nil), p.LapsErr)
		assert.Equal(t, selection.LoadingLaps, v.State().Phase)
	})
}

func TestSubscribe(t *testing.T) {
	p := setupProvider()
	v := New(p)
	defer v.Close()
	ch := v.Subscribe()

	received := make(chan []Change)
	go func() {
		ret := []Change{}
		for c := range ch {
			ret = append(ret, c)
			if len(ret) == 2 {
				break
			}
		}
		received <- ret
	}()

	require.NoError(t, v.Open(context.Background(), nil))
	waitIdle(t, v)

	select {
	case got := <-received:
		assert.Equal(t, []Change{
			{Kind: SessionLoaded, SessionID: 2},
			{Kind: TelemetryMerged, SessionID: 2, LapID: 21},
		}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no changes received")
	}
	v.Unsubscribe(ch)
}

func TestConsistency(t *testing.T) {
	p := setupProvider()
	v := New(p)
	defer v.Close()
	require.NoError(t, v.Open(context.Background(), nil))

	summary, chart := v.Consistency()
	assert.Equal(t, 3, summary.TotalLaps)
	assert.Equal(t, int64(45000), summary.BestLapTimeMs)
	require.Len(t, chart.Bars, 3)
	assert.True(t, chart.Bars[0].Selected)
	assert.False(t, chart.Bars[1].Selected)
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "TelemetryMerged", TelemetryMerged.String())
	assert.Equal(t, "Unknown", ChangeKind(9).String())
}

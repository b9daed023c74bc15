package compare

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/config"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/view"
	"github.com/mpapenbr/kartlog-telemetry-go/testsupport/fakeprovider"
)

func sampleProvider() *fakeprovider.Provider {
	p := fakeprovider.New()
	p.Sessions = []*model.Session{{ID: 3}}
	p.Laps[3] = []*model.Lap{
		{ID: 31, LapNumber: 1, LapTimeMs: 61000, Valid: true},
		{ID: 32, LapNumber: 2, LapTimeMs: 60500, Valid: true},
	}
	p.Telemetry[31] = fakeprovider.Samples([]float64{0, 5, 10}, []float64{40, 60, 80})
	p.Telemetry[32] = fakeprovider.Samples([]float64{0, 10}, []float64{50, 70})
	return p
}

func TestCompareCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &config.Config{LapIDs: []int64{31}, Step: 5, Format: formatCSV, ValidOnly: true}
	require.NoError(t, compareLaps(context.Background(), sampleProvider(), cfg, buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t,
		"distance,speed_32,rpm_32,throttle_32,brake_32,steering_32,"+
			"speed_31,rpm_31,throttle_31,brake_31,steering_31",
		lines[0])
	assert.Equal(t, "0,50,5000,25,75,0,40,4000,20,80,0", lines[1])
	assert.Equal(t, "5,60,6000,30,70,0,60,6000,30,70,0", lines[2])
	assert.Equal(t, "10,70,7000,35,65,0,80,8000,40,60,0", lines[3])
}

func TestCompareDefaultSelectionOnly(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &config.Config{Step: 10, Format: formatCSV}
	require.NoError(t, compareLaps(context.Background(), sampleProvider(), cfg, buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "distance,speed_32,rpm_32,throttle_32,brake_32,steering_32", lines[0])
}

func TestCompareSkipsFailedLap(t *testing.T) {
	p := sampleProvider()
	p.Failing[31] = errors.New("boom")
	buf := &bytes.Buffer{}
	cfg := &config.Config{LapIDs: []int64{31}, Step: 5, Format: formatCSV}
	require.NoError(t, compareLaps(context.Background(), p, cfg, buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "distance,speed_32,rpm_32,throttle_32,brake_32,steering_32", lines[0])
}

func TestCompareJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &config.Config{LapIDs: []int64{31}, Step: 5, Format: formatJSON}
	require.NoError(t, compareLaps(context.Background(), sampleProvider(), cfg, buf))

	doc, err := oj.ParseString(buf.String())
	require.NoError(t, err)
	m, ok := doc.(map[string]any)
	require.True(t, ok)

	assert.InDelta(t, 3, num(m["session_id"]), 0)
	assert.InDelta(t, 5, num(m["step"]), 0)

	laps, ok := m["laps"].([]any)
	require.True(t, ok)
	require.Len(t, laps, 2)
	first := laps[0].(map[string]any)
	assert.InDelta(t, 32, num(first["lap_id"]), 0)
	assert.Equal(t, "#3b82f6", first["color"])
	assert.Equal(t, true, first["available"])

	rows, ok := m["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 3)
	mid := rows[1].(map[string]any)
	assert.InDelta(t, 5, num(mid["distance"]), 0)
	assert.InDelta(t, 60, num(mid["speed_31"]), 1e-9)
	assert.InDelta(t, 60, num(mid["speed_32"]), 1e-9)
}

func TestCompareNoSession(t *testing.T) {
	cfg := &config.Config{Step: 5, Format: formatCSV}
	err := compareLaps(context.Background(), fakeprovider.New(), cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, view.ErrNoSession)
}

func TestCompareCmdRejectsFormat(t *testing.T) {
	cmd := NewCompareCmd()
	cmd.SetArgs([]string{"--format", "xml"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "unsupported format")
}

func TestCompareCmdRejectsTinyStep(t *testing.T) {
	for _, step := range []string{"0", "-5", "1e-300"} {
		cmd := NewCompareCmd()
		cmd.SetArgs([]string{"--step=" + step})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		err := cmd.Execute()
		assert.ErrorContains(t, err, "step must be at least", "step %s", step)
	}
}

func num(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	default:
		return -1
	}
}

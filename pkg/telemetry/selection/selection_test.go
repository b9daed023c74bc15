//nolint:funlen // ok for tests
package selection

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
)

func lap(id, num, ms int64, valid bool) *model.Lap {
	return &model.Lap{ID: id, LapNumber: num, LapTimeMs: ms, Valid: valid}
}

func manyLaps(n int) []*model.Lap {
	ret := []*model.Lap{}
	for i := 1; i <= n; i++ {
		ret = append(ret, lap(int64(100+i), int64(i), int64(50000-i), true))
	}
	return ret
}

func TestLapsLoadedSelectsFastestValid(t *testing.T) {
	tests := []struct {
		name string
		laps []*model.Lap
		want []int64
	}{
		{
			name: "fastest valid",
			laps: []*model.Lap{
				lap(1, 1, 46000, true),
				lap(2, 2, 44000, false),
				lap(3, 3, 45000, true),
			},
			want: []int64{3},
		},
		{
			name: "tie broken by lowest lap number",
			laps: []*model.Lap{
				lap(7, 4, 45000, true),
				lap(8, 2, 45000, true),
				lap(9, 3, 45500, true),
			},
			want: []int64{8},
		},
		{
			name: "no valid laps",
			laps: []*model.Lap{lap(1, 1, 46000, false)},
			want: nil,
		},
		{
			name: "no laps",
			laps: nil,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			ticket := c.BeginSession(1)
			assert.Equal(t, c.Phase(), LoadingLaps)
			assert.Assert(t, c.LapsLoaded(ticket, tt.laps))
			assert.Equal(t, c.Phase(), Ready)
			assert.DeepEqual(t, c.Selected(), tt.want)
		})
	}
}

func TestLapsAreSortedByLapNumber(t *testing.T) {
	c := New()
	c.LapsLoaded(c.BeginSession(1), []*model.Lap{
		lap(3, 3, 1, true), lap(1, 1, 1, true), lap(2, 2, 1, true),
	})
	s := c.Snapshot()
	nums := []int64{}
	for _, l := range s.Laps {
		nums = append(nums, l.LapNumber)
	}
	assert.DeepEqual(t, nums, []int64{1, 2, 3})
}

func TestToggle(t *testing.T) {
	c := New()
	c.LapsLoaded(c.BeginSession(1), manyLaps(7))
	// lap 107 is the fastest
	assert.DeepEqual(t, c.Selected(), []int64{107})

	assert.Assert(t, c.Toggle(101))
	assert.Assert(t, c.Toggle(102))
	assert.Assert(t, c.Toggle(103))
	assert.Assert(t, c.Toggle(104))
	assert.DeepEqual(t, c.Selected(), []int64{107, 101, 102, 103, 104})

	// sixth lap is ignored
	assert.Assert(t, !c.Toggle(105))
	assert.Equal(t, len(c.Selected()), MaxSelected)

	// removing keeps the order of the others
	assert.Assert(t, c.Toggle(102))
	assert.DeepEqual(t, c.Selected(), []int64{107, 101, 103, 104})
	assert.Assert(t, c.Toggle(105))
	assert.DeepEqual(t, c.Selected(), []int64{107, 101, 103, 104, 105})

	// unknown lap
	assert.Assert(t, c.Toggle(101))
	assert.Assert(t, !c.Toggle(999))
	assert.Assert(t, !c.IsSelected(999))
}

func TestToggleNeverExceedsMax(t *testing.T) {
	c := New()
	c.LapsLoaded(c.BeginSession(1), manyLaps(20))
	for i := 1; i <= 20; i++ {
		c.Toggle(int64(100 + i))
		assert.Assert(t, len(c.Selected()) <= MaxSelected)
	}
}

func TestToggleOutsideReady(t *testing.T) {
	c := New()
	assert.Assert(t, !c.Toggle(1))
	c.BeginSession(1)
	assert.Assert(t, !c.Toggle(1))
}

func TestSessionChangeResetsSelection(t *testing.T) {
	c := New()
	c.LapsLoaded(c.BeginSession(1), manyLaps(4))
	c.Toggle(101)
	c.Toggle(102)

	ticket := c.BeginSession(2)
	s := c.Snapshot()
	assert.Equal(t, s.Phase, LoadingLaps)
	assert.Equal(t, s.SessionID, int64(2))
	assert.Equal(t, len(s.Laps), 0)
	assert.Equal(t, len(s.Selected), 0)
	assert.Assert(t, !c.Relevant(101))

	c.LapsLoaded(ticket, []*model.Lap{lap(201, 1, 50000, true), lap(202, 2, 49000, true)})
	assert.DeepEqual(t, c.Selected(), []int64{202})
	assert.Assert(t, c.Relevant(201))
	assert.Assert(t, !c.Relevant(101))
}

func TestOutdatedTicketIsIgnored(t *testing.T) {
	c := New()
	old := c.BeginSession(1)
	current := c.BeginSession(2)

	assert.Assert(t, !c.LapsLoaded(old, manyLaps(3)))
	assert.Equal(t, c.Phase(), LoadingLaps)
	assert.Assert(t, c.LapsLoaded(current, []*model.Lap{lap(5, 1, 1000, true)}))
	assert.DeepEqual(t, c.Selected(), []int64{5})

	// a second delivery for the same ticket is ignored as well
	assert.Assert(t, !c.LapsLoaded(current, manyLaps(3)))
}

func TestReset(t *testing.T) {
	c := New()
	c.LapsLoaded(c.BeginSession(1), manyLaps(2))
	c.Reset()
	s := c.Snapshot()
	assert.Equal(t, s.Phase, NoSession)
	assert.Equal(t, len(s.Selected), 0)
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, ColorFor(0), "#3b82f6")
	assert.Equal(t, ColorFor(4), "#a855f7")
	assert.Equal(t, ColorFor(5), "#3b82f6")
}

func TestResolveSession(t *testing.T) {
	sessions := []*model.Session{{ID: 9}, {ID: 3}}
	explicit := int64(3)

	id, ok := ResolveSession(&explicit, sessions)
	assert.Assert(t, ok)
	assert.Equal(t, id, int64(3))

	id, ok = ResolveSession(nil, sessions)
	assert.Assert(t, ok)
	assert.Equal(t, id, int64(9))

	_, ok = ResolveSession(nil, nil)
	assert.Assert(t, !ok)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, Ready.String(), "Ready")
	assert.Equal(t, Phase(42).String(), "Unknown")
}

// Package selection tracks the active session, its laps and the laps selected
// for comparison.
package selection

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
)

// MaxSelected is the maximum number of laps compared at the same time
const MaxSelected = 5

// Palette holds the colors assigned to selected laps by selection order
var Palette = []string{
	"#3b82f6", // blue
	"#ef4444", // red
	"#22c55e", // green
	"#eab308", // yellow
	"#a855f7", // purple
}

type Phase int

const (
	NoSession Phase = iota
	LoadingLaps
	Ready
)

func (p Phase) String() string {
	switch p {
	case NoSession:
		return "NoSession"
	case LoadingLaps:
		return "LoadingLaps"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

type (
	// Ticket identifies a session load. Lap lists delivered with an outdated
	// ticket are ignored.
	Ticket struct {
		SessionID  int64
		generation uint64
	}

	// State is a snapshot of the coordinator
	State struct {
		Phase     Phase
		SessionID int64
		Laps      []*model.Lap // sorted by lap number
		Selected  []int64      // in selection order
	}

	Coordinator struct {
		mu         sync.RWMutex
		phase      Phase
		sessionID  int64
		generation uint64
		laps       []*model.Lap
		selected   []int64
		l          *log.Logger
	}

	Option func(*Coordinator)
)

func WithLogger(arg *log.Logger) Option {
	return func(c *Coordinator) {
		c.l = arg
	}
}

func New(opts ...Option) *Coordinator {
	ret := &Coordinator{
		phase: NoSession,
		l:     log.Default().Named("selection"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// BeginSession discards laps and selection and waits for the laps of sessionID.
func (c *Coordinator) BeginSession(sessionID int64) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.phase = LoadingLaps
	c.sessionID = sessionID
	c.laps = nil
	c.selected = nil
	c.l.Debug("loading laps", log.Int64("session", sessionID))
	return Ticket{SessionID: sessionID, generation: c.generation}
}

// LapsLoaded installs the laps for the session identified by t and selects
// the fastest valid lap. Returns false if t is outdated.
func (c *Coordinator) LapsLoaded(t Ticket, laps []*model.Lap) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != LoadingLaps || t.generation != c.generation {
		c.l.Debug("ignoring outdated lap list", log.Int64("session", t.SessionID))
		return false
	}
	sorted := lo.Filter(laps, func(l *model.Lap, _ int) bool { return l != nil })
	slices.SortStableFunc(sorted, func(a, b *model.Lap) int {
		return cmp.Compare(a.LapNumber, b.LapNumber)
	})
	c.laps = sorted
	c.selected = nil
	if best := FastestValid(sorted); best != nil {
		c.selected = []int64{best.ID}
	}
	c.phase = Ready
	c.l.Debug("laps loaded",
		log.Int64("session", c.sessionID),
		log.Int("laps", len(sorted)),
		log.Int64s("selected", c.selected))
	return true
}

// Reset returns to NoSession
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.phase = NoSession
	c.sessionID = 0
	c.laps = nil
	c.selected = nil
}

// Toggle removes lapID from the selection if selected, otherwise adds it.
// Adding is ignored if MaxSelected laps are selected already, as are unknown
// laps and calls outside of Ready. Returns true if the selection changed.
func (c *Coordinator) Toggle(lapID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Ready {
		return false
	}
	if idx := slices.Index(c.selected, lapID); idx >= 0 {
		c.selected = slices.Delete(slices.Clone(c.selected), idx, idx+1)
		return true
	}
	if len(c.selected) >= MaxSelected {
		c.l.Debug("selection full, ignoring lap", log.Int64("lap", lapID))
		return false
	}
	if !c.knownLocked(lapID) {
		return false
	}
	c.selected = append(slices.Clone(c.selected), lapID)
	return true
}

func (c *Coordinator) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		Phase:     c.phase,
		SessionID: c.sessionID,
		Laps:      slices.Clone(c.laps),
		Selected:  slices.Clone(c.selected),
	}
}

func (c *Coordinator) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Selected returns the selected lap ids in selection order
func (c *Coordinator) Selected() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.selected)
}

func (c *Coordinator) IsSelected(lapID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.selected, lapID)
}

// Relevant reports whether lapID belongs to the laps of the current session.
func (c *Coordinator) Relevant(lapID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase == Ready && c.knownLocked(lapID)
}

// Lap returns the lap with id lapID of the current session
func (c *Coordinator) Lap(lapID int64) (*model.Lap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Find(c.laps, func(l *model.Lap) bool { return l.ID == lapID })
}

func (c *Coordinator) knownLocked(lapID int64) bool {
	return lo.ContainsBy(c.laps, func(l *model.Lap) bool { return l.ID == lapID })
}

// FastestValid returns the valid lap with the strictly minimal lap time.
// On ties the first lap in the given order wins. Returns nil if there is no
// valid lap.
func FastestValid(laps []*model.Lap) *model.Lap {
	var best *model.Lap
	for _, l := range laps {
		if l == nil || !l.Valid {
			continue
		}
		if best == nil || l.LapTimeMs < best.LapTimeMs {
			best = l
		}
	}
	return best
}

// ColorFor returns the palette color for the lap at position idx of the
// selection. The palette is cycled.
func ColorFor(idx int) string {
	if idx < 0 {
		idx = -idx
	}
	return Palette[idx%len(Palette)]
}

// ResolveSession picks the session to show: explicit if given, otherwise the
// first (most recent) of sessions. ok is false if there is none.
func ResolveSession(explicit *int64, sessions []*model.Session) (id int64, ok bool) {
	if explicit != nil {
		return *explicit, true
	}
	if len(sessions) == 0 || sessions[0] == nil {
		return 0, false
	}
	return sessions[0].ID, true
}

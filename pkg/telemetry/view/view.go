// Package view combines telemetry cache, fetcher, lap selection and alignment
// into the state behind a lap comparison screen.
//
// The aligned grid is derived data. Every change of the selection or of the
// cached telemetry of a selected lap marks it dirty, it is rebuilt on the next
// call to Grid. Telemetry is fetched in the background, Grid always works on
// the laps whose data already arrived.
package view

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/align"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/consistency"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/fetch"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/selection"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/utils/broadcast"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/utils/cache/memcache"
)

var ErrNoSession = errors.New("no session available")

type ChangeKind int

const (
	SessionLoaded ChangeKind = iota
	SelectionChanged
	TelemetryMerged
)

func (k ChangeKind) String() string {
	switch k {
	case SessionLoaded:
		return "SessionLoaded"
	case SelectionChanged:
		return "SelectionChanged"
	case TelemetryMerged:
		return "TelemetryMerged"
	default:
		return "Unknown"
	}
}

type (
	Change struct {
		Kind      ChangeKind
		SessionID int64
		LapID     int64 // set for TelemetryMerged
	}

	// SeriesInfo describes a selected lap for presentation
	SeriesInfo struct {
		LapID     int64
		LapNumber int64
		Color     string
		Samples   int
		Pending   bool // fetch outstanding
		Available bool // telemetry with at least one sample is cached
	}

	Option func(*View)

	View struct {
		id        string
		provider  provider.Provider
		cache     fetch.Cache
		coord     *selection.Coordinator
		fetcher   *fetch.Fetcher
		validOnly bool
		step      float64
		l         *log.Logger

		mu    sync.Mutex
		dirty bool
		grid  []align.Row

		ctx     context.Context
		cancel  context.CancelFunc
		wg      sync.WaitGroup
		changes chan Change
		bcst    broadcast.BroadcastServer[Change]
	}
)

// WithValidOnly controls whether only valid laps are requested. Default true
func WithValidOnly(arg bool) Option {
	return func(v *View) {
		v.validOnly = arg
	}
}

// WithStep sets the grid spacing in meters
func WithStep(arg float64) Option {
	return func(v *View) {
		v.step = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(v *View) {
		v.l = arg
	}
}

// WithCache lets the view use c instead of a fresh cache
func WithCache(c fetch.Cache) Option {
	return func(v *View) {
		v.cache = c
	}
}

func New(p provider.Provider, opts ...Option) *View {
	ret := &View{
		id:        uuid.NewString(),
		provider:  p,
		validOnly: true,
		step:      align.DefaultStep,
		l:         log.Default().Named("view"),
		changes:   make(chan Change),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.l = ret.l.With(log.String("view", ret.id))
	if ret.cache == nil {
		ret.cache = memcache.New(
			memcache.WithLogger[int64, model.LapSeries](ret.l.Named("cache")))
	}
	ret.coord = selection.New(selection.WithLogger(ret.l.Named("selection")))
	ret.fetcher = fetch.New(ret.cache, p,
		fetch.WithLogger(ret.l.Named("fetch")),
		fetch.WithLimit(selection.MaxSelected))
	ret.ctx, ret.cancel = context.WithCancel(context.Background())
	ret.bcst = broadcast.NewBroadcastServer("view", ret.changes,
		broadcast.WithLogger[Change](ret.l.Named("broadcast")))
	return ret
}

func (v *View) ID() string {
	return v.id
}

// Open loads the session sessionID or, if nil, the most recent session.
// Returns ErrNoSession if sessionID is nil and there are no sessions.
func (v *View) Open(ctx context.Context, sessionID *int64) error {
	var sessions []*model.Session
	if sessionID == nil {
		var err error
		if sessions, err = v.provider.ListSessions(ctx); err != nil {
			return err
		}
	}
	id, ok := selection.ResolveSession(sessionID, sessions)
	if !ok {
		v.coord.Reset()
		v.markDirty()
		return ErrNoSession
	}
	return v.SwitchSession(ctx, id)
}

// SwitchSession discards laps and selection and loads the laps of sessionID.
// The fastest valid lap is selected and its telemetry fetched in the background.
func (v *View) SwitchSession(ctx context.Context, sessionID int64) error {
	ticket := v.coord.BeginSession(sessionID)
	v.markDirty()
	v.l.Info("loading session", log.Int64("session", sessionID))

	laps, err := v.provider.ListLaps(ctx, sessionID, v.validOnly)
	if err != nil {
		return err
	}
	if !v.coord.LapsLoaded(ticket, laps) {
		// another session was requested meanwhile
		return nil
	}
	v.markDirty()
	v.publish(Change{Kind: SessionLoaded, SessionID: sessionID})
	v.refresh()
	return nil
}

// Toggle adds or removes lapID from the selection. See selection.Coordinator.
// Returns true if the selection changed.
func (v *View) Toggle(lapID int64) bool {
	if !v.coord.Toggle(lapID) {
		return false
	}
	v.markDirty()
	v.publish(Change{Kind: SelectionChanged, SessionID: v.coord.Snapshot().SessionID})
	v.refresh()
	return true
}

// State returns the current selection state
func (v *View) State() selection.State {
	return v.coord.Snapshot()
}

// Grid returns the aligned grid of the selected laps with telemetry.
// The returned rows must not be modified.
func (v *View) Grid() []align.Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dirty {
		v.grid = align.Align(v.available(), align.WithStep(v.step))
		v.dirty = false
	}
	return v.grid
}

// Series returns the selected laps in selection order with their colors.
func (v *View) Series() []SeriesInfo {
	ret := []SeriesInfo{}
	for i, id := range v.coord.Selected() {
		info := SeriesInfo{
			LapID:   id,
			Color:   selection.ColorFor(i),
			Pending: v.fetcher.InFlight(id),
		}
		if l, ok := v.coord.Lap(id); ok {
			info.LapNumber = l.LapNumber
		}
		if s, err := v.cache.Get(v.ctx, id); err == nil {
			info.Samples = len(s.Samples)
			info.Available = !s.Empty()
		}
		ret = append(ret, info)
	}
	return ret
}

// Loading reports whether telemetry of a selected lap is being fetched
func (v *View) Loading() bool {
	for _, id := range v.coord.Selected() {
		if v.fetcher.InFlight(id) {
			return true
		}
	}
	return false
}

// Consistency returns lap time statistics and the lap time chart of the
// current session
func (v *View) Consistency() (consistency.Summary, consistency.Chart) {
	s := v.coord.Snapshot()
	return consistency.Summarize(s.Laps), consistency.Bars(s.Laps, s.Selected)
}

// Wait blocks until all background fetches are done or ctx is done.
func (v *View) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving a Change for each modification.
func (v *View) Subscribe() <-chan Change {
	return v.bcst.Subscribe()
}

func (v *View) Unsubscribe(ch <-chan Change) {
	v.bcst.CancelSubscription(ch)
}

// Close cancels outstanding fetches and closes all subscriptions.
func (v *View) Close() {
	v.cancel()
	v.wg.Wait()
	v.bcst.Close()
}

// available returns the selected laps with cached samples in selection order
func (v *View) available() []*model.LapSeries {
	ret := []*model.LapSeries{}
	for _, id := range v.coord.Selected() {
		if s, err := v.cache.Get(v.ctx, id); err == nil && !s.Empty() {
			ret = append(ret, s)
		}
	}
	return ret
}

// refresh fetches telemetry of selected laps missing in the cache
func (v *View) refresh() {
	// claimed before returning so Loading reports the fetch right away
	todo := v.fetcher.Claim(v.ctx, v.coord.Selected())
	if len(todo) == 0 {
		return
	}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		res := v.fetcher.Run(v.ctx, todo, fetch.Request{
			Relevant: v.coord.Relevant,
			LapNumber: func(id int64) int64 {
				if l, ok := v.coord.Lap(id); ok {
					return l.LapNumber
				}
				return 0
			},
			OnMerge: func(s *model.LapSeries) {
				if v.coord.IsSelected(s.LapID) {
					v.markDirty()
				}
				v.publish(Change{
					Kind:      TelemetryMerged,
					SessionID: v.coord.Snapshot().SessionID,
					LapID:     s.LapID,
				})
			},
		})
		if len(res.Failed) > 0 || len(res.Dropped) > 0 {
			v.l.Debug("fetch finished",
				log.Int64s("fetched", res.Fetched),
				log.Int64s("failed", res.Failed),
				log.Int64s("dropped", res.Dropped))
		}
	}()
}

func (v *View) markDirty() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dirty = true
}

func (v *View) publish(c Change) {
	select {
	case v.changes <- c:
	case <-v.ctx.Done():
	}
}

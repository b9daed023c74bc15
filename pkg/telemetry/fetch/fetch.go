// Package fetch loads lap telemetry that is not yet present in the telemetry cache.
package fetch

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/utils/cache"
)

const instrumentationName = "github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/fetch"

type (
	// Source delivers the samples of a single lap
	Source interface {
		GetLapTelemetry(ctx context.Context, lapID int64) ([]model.TelemetrySample, error)
	}
	Cache = cache.Cache[int64, model.LapSeries]

	Request struct {
		Selected []int64
		// Relevant is consulted right before a result is merged into the cache.
		// Results for laps that are no longer relevant are dropped. nil means all
		// laps are relevant.
		Relevant func(lapID int64) bool
		// LapNumber resolves the lap number stored with the series. optional
		LapNumber func(lapID int64) int64
		// OnMerge is called after a series was stored in the cache. optional
		OnMerge func(series *model.LapSeries)
	}

	Result struct {
		Fetched []int64 // merged with data
		Failed  []int64 // merged as empty series
		Dropped []int64 // not merged, no longer relevant
	}

	Option func(*Fetcher)

	Fetcher struct {
		cache    Cache
		source   Source
		limit    int
		l        *log.Logger
		mu       sync.Mutex
		inFlight map[int64]struct{}
		tracer   trace.Tracer
		requests metric.Int64Counter
		failures metric.Int64Counter
		duration metric.Float64Histogram
	}

	outcome struct {
		series *model.LapSeries
		err    error
	}
)

func WithLogger(arg *log.Logger) Option {
	return func(f *Fetcher) {
		f.l = arg
	}
}

// WithLimit bounds the number of concurrent requests
func WithLimit(arg int) Option {
	return func(f *Fetcher) {
		f.limit = arg
	}
}

func New(c Cache, source Source, opts ...Option) *Fetcher {
	ret := &Fetcher{
		cache:    c,
		source:   source,
		limit:    5,
		l:        log.Default().Named("fetch"),
		inFlight: map[int64]struct{}{},
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.setupMetrics()
	return ret
}

func (f *Fetcher) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(instrumentationName)
	var err error
	if f.requests, err = meter.Int64Counter("ktm.fetch.requests",
		metric.WithDescription("Number of lap telemetry requests"),
		metric.WithUnit("{count}")); err != nil {
		f.l.Warn("failed to register metric", log.ErrorField(err))
	}
	if f.failures, err = meter.Int64Counter("ktm.fetch.failures",
		metric.WithDescription("Number of failed lap telemetry requests"),
		metric.WithUnit("{count}")); err != nil {
		f.l.Warn("failed to register metric", log.ErrorField(err))
	}
	if f.duration, err = meter.Float64Histogram("ktm.fetch.duration",
		metric.WithDescription("Duration of lap telemetry requests"),
		metric.WithUnit("s")); err != nil {
		f.l.Warn("failed to register metric", log.ErrorField(err))
	}
}

// Missing returns the ids of selected which have no cache entry.
// The order of selected is kept.
func (f *Fetcher) Missing(ctx context.Context, selected []int64) []int64 {
	ret := []int64{}
	for _, id := range selected {
		if !f.cache.Has(ctx, id) && !slices.Contains(ret, id) {
			ret = append(ret, id)
		}
	}
	return ret
}

// InFlight reports whether a request for lapID is outstanding
func (f *Fetcher) InFlight(lapID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inFlight[lapID]
	return ok
}

// Fetch requests all missing laps of req.Selected concurrently and merges each
// result into the cache as soon as it arrives. It returns when all requests
// are done. Laps already in flight by another call are skipped.
// A failed request is stored as empty series and reported in Result.Failed.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	return f.Run(ctx, f.Claim(ctx, req.Selected), req)
}

// Claim marks the missing laps of selected as in flight and returns them.
// Laps already in flight are not returned. Every claimed lap must be passed
// to Run, which releases it.
func (f *Fetcher) Claim(ctx context.Context, selected []int64) []int64 {
	return f.claim(f.Missing(ctx, selected))
}

// Run fetches the laps todo previously returned by Claim. req.Selected is
// not used.
//
//nolint:funlen // by design
func (f *Fetcher) Run(ctx context.Context, todo []int64, req Request) Result {
	ret := Result{}
	if len(todo) == 0 {
		return ret
	}
	f.l.Debug("fetching laps", log.Int64s("laps", todo))

	results := make(chan outcome, len(todo))
	g := errgroup.Group{}
	g.SetLimit(f.limit)
	for _, id := range todo {
		g.Go(func() error {
			results <- f.fetchOne(ctx, id)
			return nil
		})
	}
	go func() {
		//nolint:errcheck // workers never return errors
		g.Wait()
		close(results)
	}()

	for res := range results {
		id := res.series.LapID
		if req.LapNumber != nil {
			res.series.LapNumber = req.LapNumber(id)
		}
		if req.Relevant != nil && !req.Relevant(id) {
			f.release(id)
			f.l.Debug("dropping stale result", log.Int64("lap", id))
			ret.Dropped = append(ret.Dropped, id)
			continue
		}
		f.cache.Put(ctx, id, res.series)
		f.release(id)
		if res.err != nil {
			ret.Failed = append(ret.Failed, id)
		} else {
			ret.Fetched = append(ret.Fetched, id)
		}
		if req.OnMerge != nil {
			req.OnMerge(res.series)
		}
	}
	return ret
}

func (f *Fetcher) fetchOne(ctx context.Context, id int64) outcome {
	ctx, span := f.tracer.Start(ctx, "fetch.lap",
		trace.WithAttributes(attribute.Int64("lap.id", id)))
	defer span.End()

	attrs := metric.WithAttributes(attribute.Int64("lap.id", id))
	f.requests.Add(ctx, 1, attrs)
	start := time.Now()
	data, err := f.source.GetLapTelemetry(ctx, id)
	f.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		f.failures.Add(ctx, 1, attrs)
		f.l.Warn("could not fetch lap telemetry, storing empty series",
			log.Int64("lap", id), log.ErrorField(err))
		return outcome{series: &model.LapSeries{LapID: id}, err: err}
	}
	span.SetAttributes(attribute.Int("samples", len(data)))
	return outcome{series: &model.LapSeries{LapID: id, Samples: f.ordered(id, data)}}
}

// ordered makes sure samples are sorted by distance.
func (f *Fetcher) ordered(id int64, data []model.TelemetrySample) []model.TelemetrySample {
	byDistance := func(a, b model.TelemetrySample) int {
		return cmp.Compare(a.DistanceM, b.DistanceM)
	}
	if slices.IsSortedFunc(data, byDistance) {
		return data
	}
	f.l.Warn("telemetry not ordered by distance, sorting", log.Int64("lap", id))
	ret := slices.Clone(data)
	slices.SortStableFunc(ret, byDistance)
	return ret
}

func (f *Fetcher) claim(ids []int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := f.inFlight[id]; ok {
			continue
		}
		f.inFlight[id] = struct{}{}
		ret = append(ret, id)
	}
	return ret
}

func (f *Fetcher) release(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, id)
}

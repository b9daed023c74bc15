package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
)

//nolint:lll // by design
// see https://betterprogramming.pub/how-to-broadcast-messages-in-go-using-channels-b68f42bdf32e

type BroadcastServer[T any] interface {
	// Subscribe returns a channel receiving all messages published after the call.
	// The channel is closed when the subscription is canceled or the server is closed.
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type broadcastServer[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	sendTimeout    time.Duration
	bufferSize     int
	numRcv         atomic.Int64
	numSnd         atomic.Int64
	numSkip        atomic.Int64
	numListeners   atomic.Int64
	l              *log.Logger
	registration   metric.Registration
	closeOnce      sync.Once
}

type Option[T any] func(*broadcastServer[T])

// WithSendTimeout sets how long a slow listener may block a message before it
// is skipped for that listener.
func WithSendTimeout[T any](arg time.Duration) Option[T] {
	return func(b *broadcastServer[T]) {
		b.sendTimeout = arg
	}
}

// WithBufferSize sets the channel buffer of each subscription
func WithBufferSize[T any](arg int) Option[T] {
	return func(b *broadcastServer[T]) {
		b.bufferSize = arg
	}
}

func WithLogger[T any](arg *log.Logger) Option[T] {
	return func(b *broadcastServer[T]) {
		b.l = arg
	}
}

func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T, b.bufferSize)
	select {
	case b.addListener <- ch:
	case <-b.ctx.Done():
		close(ch)
	}
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	select {
	case b.removeListener <- ch:
	case <-b.ctx.Done():
	}
}

func (b *broadcastServer[T]) Close() {
	b.closeOnce.Do(func() {
		b.l.Debug("Closing broadcast server",
			log.String("name", b.name),
			log.Int64("rcv", b.numRcv.Load()),
			log.Int64("snd", b.numSnd.Load()),
			log.Int64("skip", b.numSkip.Load()))
		b.cancel()
		if b.registration != nil {
			if err := b.registration.Unregister(); err != nil {
				b.l.Warn("failed to unregister metric callback", log.ErrorField(err))
			}
		}
	})
}

//nolint:whitespace // false positive
func NewBroadcastServer[T any](
	name string,
	source <-chan T,
	opts ...Option[T],
) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		sendTimeout:    50 * time.Millisecond,
		bufferSize:     8,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	go b.serve()
	return b
}

//nolint:lll // readability
func (b *broadcastServer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("ktm.broadcast.%s", b.name))
	type data struct {
		name  string
		desc  string
		value func() int64
		gauge metric.Int64ObservableGauge
	}
	all := []*data{
		{name: "ktm.broadcast.rcv", desc: "Number of received messages", value: b.numRcv.Load},
		{name: "ktm.broadcast.snd", desc: "Number of sent messages", value: b.numSnd.Load},
		{name: "ktm.broadcast.skip", desc: "Number of skipped messages", value: b.numSkip.Load},
		{name: "ktm.broadcast.listener", desc: "Number of listeners", value: b.numListeners.Load},
	}
	instruments := make([]metric.Observable, 0, len(all))
	for _, d := range all {
		g, err := meter.Int64ObservableGauge(d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"))
		if err != nil {
			b.l.Error("failed to register metric",
				log.String("metric", d.name),
				log.ErrorField(err))
			continue
		}
		d.gauge = g
		instruments = append(instruments, g)
	}
	attrs := metric.WithAttributes(attribute.String("name", b.name))
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, d := range all {
			if d.gauge != nil {
				o.ObserveInt64(d.gauge, d.value(), attrs)
			}
		}
		return nil
	}, instruments...)
	if err != nil {
		b.l.Error("failed to register metric callback", log.ErrorField(err))
		return
	}
	b.registration = reg
}

//nolint:funlen,cyclop,gocognit // by design
func (b *broadcastServer[T]) serve() {
	defer func() {
		b.l.Debug("Closing listeners", log.String("name", b.name))
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
		b.numListeners.Store(0)
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
			b.numListeners.Store(int64(len(b.listeners)))
		case ch := <-b.removeListener:
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
					break
				}
			}
			b.numListeners.Store(int64(len(b.listeners)))
			b.l.Debug("removed listener",
				log.String("name", b.name), log.Int("len", len(b.listeners)))
		case msg, ok := <-b.source:
			if !ok {
				return
			}
			b.numRcv.Add(1)
			for _, listener := range b.listeners {
				select {
				case listener <- msg:
					b.numSnd.Add(1)
				// don't let a slow listener block the others for too long
				case <-time.After(b.sendTimeout):
					b.numSkip.Add(1)
				}
			}
		}
	}
}

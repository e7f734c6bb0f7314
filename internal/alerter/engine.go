package alerter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/metrics"
	"github.com/wdalert/alertd/internal/notifier"
	"github.com/wdalert/alertd/internal/render"
	"github.com/wdalert/alertd/internal/state"
	"github.com/wdalert/alertd/internal/types"
)

// DefaultQueueSize is the dispatch buffer capacity when none is configured
const DefaultQueueSize = 200

// LogFunc receives operator-facing warnings from the dispatcher
type LogFunc func(level, msg string)

// Options configures a Dispatcher
type Options struct {
	QueueSize int
	Policy    Policy
	Renderer  *render.Renderer
	Channels  []notifier.Channel
	Store     *state.Store
	Log       LogFunc
	Now       func() time.Time

	// Disabled turns the dispatcher into a silent no-op
	Disabled bool
}

// Dispatcher accepts alerts without blocking and delivers them from a
// single worker goroutine.
type Dispatcher struct {
	policy   Policy
	renderer *render.Renderer
	channels []notifier.Channel
	store    *state.Store
	logFn    LogFunc
	now      func() time.Time
	logger   zerolog.Logger

	enabled bool
	queue   chan types.Alert

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// NewDispatcher creates a dispatcher. With no channels it disables itself
// and reports that once through the log callback.
func NewDispatcher(opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New(render.Options{Tag: render.DefaultTag})
	}
	if opts.Store == nil {
		opts.Store = state.NewMemoryStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		policy:   opts.Policy,
		renderer: opts.Renderer,
		channels: opts.Channels,
		store:    opts.Store,
		logFn:    opts.Log,
		now:      opts.Now,
		logger:   logger.With().Str("component", "alerter").Logger(),
		enabled:  !opts.Disabled && len(opts.Channels) > 0,
		queue:    make(chan types.Alert, opts.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if !opts.Disabled && len(opts.Channels) == 0 {
		d.log("WARN", "ALERTS: enabled, but no usable backends configured -> alerts disabled")
	}
	return d
}

// Enabled reports whether emitted alerts are processed
func (d *Dispatcher) Enabled() bool {
	return d.enabled
}

// QueueDepth returns the number of alerts waiting for the worker
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// QueueCapacity returns the dispatch buffer size
func (d *Dispatcher) QueueCapacity() int {
	return cap(d.queue)
}

// ChannelNames lists the active channels in delivery order
func (d *Dispatcher) ChannelNames() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Snapshot returns a copy of the suppression state
func (d *Dispatcher) Snapshot() state.State {
	return d.store.Snapshot()
}

// Emit queues an alert. It never blocks: when the queue is full the alert
// is dropped, and high severity drops are reported through the log callback.
func (d *Dispatcher) Emit(event string, level types.Severity, title, text string, fields map[string]any) {
	if !d.enabled || d.stopped.Load() {
		return
	}

	alert := types.NewAlert(event, level, title, text, fields, d.now())
	select {
	case d.queue <- alert:
		metrics.AlertsEnqueued.Inc()
		metrics.QueueDepth.Set(float64(len(d.queue)))
	default:
		metrics.AlertsDropped.WithLabelValues(string(level)).Inc()
		if level.IsHigh() {
			d.log("WARN", fmt.Sprintf("ALERTS: queue full; dropped alert event=%s level=%s", event, level))
		}
	}
}

// Start launches the worker. It is a no-op when disabled or already started.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped.Load() {
		return
	}
	d.started = true

	d.logger.Info().
		Int("queue_size", cap(d.queue)).
		Strs("channels", d.ChannelNames()).
		Msg("Alert dispatcher started")

	go d.run(ctx)
}

// Stop signals the worker and waits for the alert in flight to finish.
// Queued alerts that were not picked up are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped.Swap(true) {
		d.mu.Unlock()
		return
	}
	close(d.stop)
	started := d.started
	d.mu.Unlock()

	if started {
		<-d.done
	}

	for _, ch := range d.channels {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil {
				d.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Failed to close channel")
			}
		}
	}
	d.logger.Info().Int("discarded", len(d.queue)).Msg("Alert dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			metrics.QueueDepth.Set(float64(len(d.queue)))
			d.process(ctx, alert)
		}
	}
}

// process renders, decides and delivers one alert. Nothing in here may take
// the worker down.
func (d *Dispatcher) process(ctx context.Context, alert types.Alert) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("event", alert.Event).
				Msg("Recovered while processing alert")
		}
	}()

	rendered := d.renderer.Render(alert)

	var decision Decision
	d.store.Update(func(st *state.State) {
		decision = d.policy.Decide(st, alert, rendered, d.now())
	})
	if decision.Suppressed() {
		metrics.AlertsSuppressed.WithLabelValues(decision.Verdict.String()).Inc()
		d.logger.Debug().
			Str("event", alert.Event).
			Str("reason", decision.Verdict.String()).
			Msg("Alert suppressed")
		return
	}

	results := d.deliver(ctx, alert, rendered)
	if !anyDelivered(results) {
		metrics.AlertsDelivered.WithLabelValues("failed").Inc()
		d.logger.Warn().
			Str("event", alert.Event).
			Str("level", string(alert.Level)).
			Msg("Alert not delivered by any channel")
		return
	}

	metrics.AlertsDelivered.WithLabelValues("sent").Inc()
	d.store.MarkSent(alert.Event, decision.Key, d.now())
	if err := d.store.Save(); err != nil {
		metrics.StatePersistErrors.Inc()
		d.logger.Error().Err(err).Msg("Failed to persist alert state")
	}

	d.logger.Info().
		Str("event", alert.Event).
		Str("level", string(alert.Level)).
		Msg("Alert sent")
}

// deliver invokes every channel and returns one result per channel
func (d *Dispatcher) deliver(ctx context.Context, alert types.Alert, rendered string) []bool {
	results := make([]bool, len(d.channels))
	for i, ch := range d.channels {
		results[i] = d.send(ctx, ch, alert, rendered)
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, ch notifier.Channel, alert types.Alert, rendered string) (ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("channel", ch.Name()).
				Msg("Channel panicked during send")
			ok = false
		}
		metrics.ChannelSendTotal.WithLabelValues(ch.Name(), metrics.Status(ok)).Inc()
		metrics.ChannelSendDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())
	}()

	return ch.Send(ctx, alert, rendered)
}

// anyDelivered reports whether at least one channel accepted the alert
func anyDelivered(results []bool) bool {
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

func (d *Dispatcher) log(level, msg string) {
	safeLog(d.logFn, level, msg)
}

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const defaultPublishTimeout = 2 * time.Second

var publishResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "statuspage",
	Subsystem: "notify",
	Name:      "publish_total",
	Help:      "Number of event publish attempts per transport and outcome",
}, []string{"publisher", "event", "outcome"})

func init() {
	if err := prometheus.Register(publishResults); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				publishResults = existing
			}
		}
	}
}

// Fanout publishes each event to every configured transport, best effort.
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewFanout constructs a Fanout. Nil publishers are skipped.
func NewFanout(logger *slog.Logger, timeout time.Duration, publishers ...Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	active := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			active = append(active, p)
		}
	}
	return &Fanout{
		publishers: active,
		logger:     logger.With("component", "notify"),
		timeout:    timeout,
		now:        time.Now,
	}
}

// Publishers lists the names of the active transports.
func (f *Fanout) Publishers() []string {
	names := make([]string, 0, len(f.publishers))
	for _, p := range f.publishers {
		names = append(names, p.Name())
	}
	return names
}

// Emit marshals payload once and hands it to every transport concurrently,
// each with an independent timeout that survives cancellation of ctx. The
// caller waits at most one timeout. Failures are logged and counted, never returned.
func (f *Fanout) Emit(ctx context.Context, channel, event string, payload any) {
	if f == nil || len(f.publishers) == 0 {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("encode event payload failed", "event", event, "channel", channel, "error", err)
		return
	}
	env := Envelope{Event: event, Channel: channel, Payload: body, SentAt: f.now().UTC()}
	base := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, p := range f.publishers {
		g.Go(func() error {
			f.publish(base, p, env)
			return nil
		})
	}
	_ = g.Wait()
}

func (f *Fanout) publish(base context.Context, p Publisher, env Envelope) {
	ctx, cancel := context.WithTimeout(base, f.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("publisher panicked", "publisher", p.Name(), "event", env.Event, "panic", r)
			publishResults.WithLabelValues(p.Name(), env.Event, "panic").Inc()
		}
	}()
	if err := p.Publish(ctx, env); err != nil {
		f.logger.Warn("event publish failed", "publisher", p.Name(), "event", env.Event, "channel", env.Channel, "error", err)
		publishResults.WithLabelValues(p.Name(), env.Event, "error").Inc()
		return
	}
	publishResults.WithLabelValues(p.Name(), env.Event, "ok").Inc()
}

package healthcheck

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/service/registry"
)

var (
	probeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statuspage",
		Subsystem: "healthcheck",
		Name:      "probes_total",
		Help:      "Number of health probes by classified status",
	}, []string{"status"})
	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "statuspage",
		Subsystem: "healthcheck",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full health-check sweep",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	if err := prometheus.Register(probeResults); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				probeResults = existing
			}
		}
	}
	if err := prometheus.Register(sweepDuration); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
				sweepDuration = existing
			}
		}
	}
}

// ServiceSource lists every monitored service across organizations.
type ServiceSource interface {
	ListMonitoredServices(ctx context.Context) ([]domain.Service, error)
}

// StatusWriter records observations and status changes. registry.Service satisfies it.
type StatusWriter interface {
	RecordMetric(ctx context.Context, organizationID, serviceID string, input registry.MetricInput) (*domain.ServiceMetric, error)
	SetStatus(ctx context.Context, organizationID, serviceID string, status domain.ServiceStatus) (*domain.Service, error)
	MonitorToken(svc domain.Service) (string, error)
}

// Options tunes a Sweeper.
type Options struct {
	Timeout     time.Duration
	Concurrency int
	WindowSize  int
}

// Report summarises one sweep.
type Report struct {
	Checked  int           `json:"checked"`
	Skipped  int           `json:"skipped"`
	Changed  int           `json:"changed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Sweeper probes monitored services, records metrics and updates statuses.
type Sweeper struct {
	source      ServiceSource
	writer      StatusWriter
	prober      Prober
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
	uptime      *uptimeTracker
	now         func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(source ServiceSource, writer StatusWriter, prober Prober, logger *slog.Logger, opts Options) *Sweeper {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Sweeper{
		source:      source,
		writer:      writer,
		prober:      prober,
		logger:      logger.With("component", "healthcheck"),
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		uptime:      newUptimeTracker(opts.WindowSize),
		now:         time.Now,
	}
}

// Sweep probes every monitored service once. A slow endpoint only consumes its own timeout.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	start := s.now()
	services, err := s.source.ListMonitoredServices(ctx)
	if err != nil {
		return Report{}, err
	}
	var checked, skipped, changed, failed atomic.Int64
	active := make(map[string]struct{}, len(services))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, svc := range services {
		active[svc.ID] = struct{}{}
		if svc.Status == domain.ServiceUnderMaintenance {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			updated, err := s.check(gctx, svc)
			checked.Add(1)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("health check failed", "service_id", svc.ID, "organization_id", svc.OrganizationID, "error", err)
				return nil
			}
			if updated {
				changed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	s.uptime.retain(active)

	report := Report{
		Checked:  int(checked.Load()),
		Skipped:  int(skipped.Load()),
		Changed:  int(changed.Load()),
		Failed:   int(failed.Load()),
		Duration: s.now().Sub(start),
	}
	sweepDuration.Observe(report.Duration.Seconds())
	s.logger.Info("health sweep finished", "checked", report.Checked, "skipped", report.Skipped, "changed", report.Changed, "failed", report.Failed)
	return report, nil
}

func (s *Sweeper) check(ctx context.Context, svc domain.Service) (bool, error) {
	token, err := s.writer.MonitorToken(svc)
	if err != nil {
		return false, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result := s.prober.Probe(probeCtx, Target{URL: svc.MonitorURL, Token: token})
	cancel()

	uptime := s.uptime.observe(svc.ID, result.Reachable)
	status := Classify(result.Reachable, result.Latency, uptime)
	probeResults.WithLabelValues(string(status)).Inc()

	latency := float64(result.Latency) / float64(time.Millisecond)
	if _, err := s.writer.RecordMetric(ctx, svc.OrganizationID, svc.ID, registry.MetricInput{
		Status:    string(status),
		LatencyMS: latency,
		Uptime:    uptime,
	}); err != nil {
		return false, err
	}
	if status == svc.Status {
		return false, nil
	}
	if _, err := s.writer.SetStatus(ctx, svc.OrganizationID, svc.ID, status); err != nil {
		return false, err
	}
	s.logger.Info("service status changed by health check", "service_id", svc.ID, "from", svc.Status, "to", status, "latency_ms", latency, "uptime", uptime)
	return true, nil
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("health sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package healthcheck

import (
	"sync"
	"time"

	"github.com/splax/statuspage/internal/domain"
)

// Classification thresholds.
const (
	DegradedLatency   = 800 * time.Millisecond
	PartialLatency    = 900 * time.Millisecond
	MajorUptimeBelow  = 92.0
	DefaultWindowSize = 100
)

// Classify maps one observation onto a service status.
func Classify(reachable bool, latency time.Duration, uptime float64) domain.ServiceStatus {
	switch {
	case !reachable || uptime < MajorUptimeBelow:
		return domain.ServiceMajorOutage
	case latency > PartialLatency:
		return domain.ServicePartialOutage
	case latency > DegradedLatency:
		return domain.ServiceDegradedPerformance
	}
	return domain.ServiceOperational
}

// window is a fixed-size ring of reachability samples.
type window struct {
	samples []bool
	next    int
	full    bool
}

func newWindow(size int) *window {
	return &window{samples: make([]bool, size)}
}

func (w *window) add(reachable bool) {
	w.samples[w.next] = reachable
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *window) uptime() float64 {
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return 100
	}
	up := 0
	for i := 0; i < n; i++ {
		if w.samples[i] {
			up++
		}
	}
	return float64(up) * 100 / float64(n)
}

// uptimeTracker keeps one window per service.
type uptimeTracker struct {
	mu      sync.Mutex
	size    int
	windows map[string]*window
}

func newUptimeTracker(size int) *uptimeTracker {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &uptimeTracker{size: size, windows: make(map[string]*window)}
}

// observe records a sample and returns the resulting uptime percentage.
func (t *uptimeTracker) observe(serviceID string, reachable bool) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.windows[serviceID]
	if w == nil {
		w = newWindow(t.size)
		t.windows[serviceID] = w
	}
	w.add(reachable)
	return w.uptime()
}

// retain drops windows for services no longer monitored.
func (t *uptimeTracker) retain(active map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.windows {
		if _, ok := active[id]; !ok {
			delete(t.windows, id)
		}
	}
}

// Package health serves liveness and readiness probes for the terminal.
//
// Probes run periodically in the background and flip state only after a
// number of consecutive results, so one slow backend answer does not take
// the terminal out of rotation. Optional probes are reported but never fail
// readiness: the terminal keeps selling without its receipt journal.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the probed component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Probe describes one check.
type Probe struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Check   CheckFunc
	// Optional probes are listed when failing but keep the endpoint 200.
	Optional bool
	// FailAfter consecutive failures mark the probe unhealthy. Default 3.
	FailAfter int
	// RecoverAfter consecutive successes mark it healthy again. Default 1.
	RecoverAfter int
}

type probeState struct {
	Probe

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the probe goroutine.
	fails, oks int
}

func (p *probeState) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.oks = 0
		p.fails++
		if p.fails >= p.FailAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.oks++
	if p.oks >= p.RecoverAfter {
		p.healthy.Store(true)
	}
}

func (p *probeState) reason() string {
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "unhealthy"
}

// Health aggregates probes.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probeState
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers p. Probes start healthy.
func (h *Health) Add(p Probe) {
	if p.FailAfter <= 0 {
		p.FailAfter = 3
	}
	if p.RecoverAfter <= 0 {
		p.RecoverAfter = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = time.Second
	}
	s := &probeState{Probe: p}
	s.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, s)
	h.mu.Unlock()
}

// SetReady toggles the manual readiness gate, used to drain on shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Run executes every probe immediately and then each interval until ctx is
// done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range h.snapshot() {
		g.Go(func() error {
			t := time.NewTicker(interval)
			defer t.Stop()

			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
				}
			}
		})
	}
	return g.Wait()
}

func (h *Health) snapshot() []*probeState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*probeState(nil), h.probes...)
}

// report is the state of one endpoint.
type report struct {
	failed   map[string]string
	degraded map[string]string
}

func (h *Health) report(kind Kind) report {
	r := report{failed: map[string]string{}, degraded: map[string]string{}}
	for _, p := range h.snapshot() {
		if p.Kind != kind || p.healthy.Load() {
			continue
		}
		if p.Optional {
			r.degraded[p.Name] = p.reason()
		} else {
			r.failed[p.Name] = p.reason()
		}
	}
	return r
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, h.report(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	r := h.report(Readiness)
	if !h.ready.Load() {
		r.failed["_readiness"] = "not ready"
	}
	write(w, r)
}

func write(w http.ResponseWriter, r report) {
	status, code := "ok", http.StatusOK
	switch {
	case len(r.failed) > 0:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case len(r.degraded) > 0:
		status = "degraded"
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if len(r.failed)+len(r.degraded) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, m := range []map[string]string{r.failed, r.degraded} {
			names := make([]string, 0, len(m))
			for name := range m {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				e.FieldStart(name)
				e.Str(m[name])
			}
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

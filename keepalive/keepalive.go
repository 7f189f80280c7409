// Package keepalive manages a background task which periodically issues a
// lightweight liveness query against a shared database connection, so that
// intermediaries (such as gateways with idle timeouts of a few minutes)
// don't reclaim the connection during long upstream stalls.
//
// The connection is shared with the batch-execution path. The discipline
// is "pause before touching, resume after": Pause is a true barrier which
// doesn't return until any in-flight ping has fully completed, so the
// connection is quiescent the instant it returns.
package keepalive

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval between liveness queries.
const DefaultInterval = 30 * time.Second

var pingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sinker_keepalive_pings_total",
	Help: "Cumulative number of keep-alive liveness queries",
}, []string{"status"})

// Pinger issues one liveness check of a shared connection. *sql.DB and
// *sql.Conn both satisfy Pinger directly.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// QueryPinger returns a Pinger which issues "SELECT 1" against |db|.
// Prefer it over *sql.DB's own PingContext where the driver implements
// Ping as a no-op and an actual round-trip is wanted.
func QueryPinger(db *sql.DB) Pinger {
	return PingerFunc(func(ctx context.Context) error {
		var n int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&n)
	})
}

// Manager runs the background keep-alive loop.
//
// Its state is {stopped, paused} plus a mutual-exclusion gate which the
// loop holds for the full duration of a ping. The gate, and not the
// paused flag alone, is what makes Pause a barrier: a flag-only design
// could return from Pause while a ping is still executing, leaving a
// window where the batch path and the keep-alive path touch the
// connection concurrently.
type Manager struct {
	pinger   Pinger
	interval time.Duration

	stopped atomic.Bool // Monotonic: never reverts to false.
	paused  atomic.Bool
	mu      sync.Mutex // Gate guarding any in-flight ping.

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches a background loop which pings |pinger| every |interval|
// (DefaultInterval if zero) unless paused or stopped.
func Start(pinger Pinger, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	var ctx, cancel = context.WithCancel(context.Background())
	var m = &Manager{
		pinger:   pinger,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go m.serve(ctx)
	return m
}

func (m *Manager) serve(ctx context.Context) {
	defer close(m.done)

	log.WithField("interval", m.interval).Info("keep-alive task started")
	defer log.Info("keep-alive task stopped")

	var ticker = time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.stopped.Load() {
			return
		}
		// A paused cycle is simply lost. Cycles are independent, and a
		// deferred ping is never queued up.
		if m.paused.Load() {
			continue
		}

		m.mu.Lock()
		// Re-check: a Pause or Stop may have landed between the flag
		// check and the gate acquisition.
		if !m.stopped.Load() && !m.paused.Load() {
			// The ping deliberately doesn't use |ctx|: Stop interrupts
			// the sleeping loop but never a query already in flight
			// (callers wanting that guarantee Pause before Stop).
			if err := m.pinger.PingContext(context.Background()); err != nil {
				pingsTotal.WithLabelValues("fail").Inc()
				if !m.stopped.Load() {
					log.WithField("err", err).Warn("keep-alive ping failed")
				}
			} else {
				pingsTotal.WithLabelValues("ok").Inc()
			}
		}
		m.mu.Unlock()
	}
}

// Pause suspends pinging, blocking until any in-flight ping has fully
// completed. Call before exercising the connection from the batch path,
// and Resume after. Idempotent.
func (m *Manager) Pause() {
	m.paused.Store(true)
	// Round-trip the gate: the Lock cannot succeed while the loop holds
	// it for a ping, so returning implies the connection is quiescent.
	m.mu.Lock()
	m.mu.Unlock()
}

// Resume re-enables pinging. Idempotent, safe if never paused, and a
// permanent no-op once the Manager is stopped.
func (m *Manager) Resume() {
	if m.stopped.Load() {
		return
	}
	m.paused.Store(false)
}

// Stop permanently halts the keep-alive loop, promptly interrupting its
// timer sleep. Idempotent. Stop doesn't wait for an in-flight ping;
// Pause first where that guarantee is needed.
func (m *Manager) Stop() {
	m.stopped.Store(true)
	m.paused.Store(true) // Guards the race where the loop is mid-check.
	m.cancel()
}

// Done returns a channel closed when the background loop has exited.
func (m *Manager) Done() <-chan struct{} { return m.done }

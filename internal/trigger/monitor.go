// Package trigger starts sync cycles when the network comes back.
package trigger

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docsync/internal/logger"
	"docsync/internal/service"
)

const (
	defaultInterval     = 30 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// Monitor probes a URL on an interval and runs a sync cycle on every
// offline to online transition, including the first successful probe.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	syncer   service.Syncer
	log      *logger.Logger

	mu     sync.Mutex
	online bool
	probed bool
	wg     sync.WaitGroup
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithHTTPClient replaces the instrumented probe client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// NewMonitor returns a Monitor for url.
func NewMonitor(url string, s service.Syncer, opts ...Option) *Monitor {
	m := &Monitor{
		url:      url,
		interval: defaultInterval,
		client: &http.Client{
			Timeout:   defaultProbeTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		syncer: s,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("trigger")
	return m
}

// Online reports the result of the last probe.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is done, then waits for an in-flight cycle to finish.
func (m *Monitor) Run(ctx context.Context) {
	defer m.wg.Wait()

	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("connectivity_monitor_stopped", nil)
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check probes once and fires a cycle if connectivity was just regained.
// Cycles run in their own goroutine; overlap is the sync guard's concern.
func (m *Monitor) check(ctx context.Context) {
	up := m.probe(ctx)

	m.mu.Lock()
	regained := up && (!m.online || !m.probed)
	changed := up != m.online || !m.probed
	m.online, m.probed = up, true
	m.mu.Unlock()

	if changed {
		m.log.Info("connectivity_changed", map[string]any{"online": up, "url": m.url})
	}
	if !regained {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.syncer.RunSync(ctx); err != nil {
			m.log.Error("triggered_sync_failed", err, nil)
		}
	}()
}

// probe treats any HTTP response as connectivity; only transport errors
// mean offline.
func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

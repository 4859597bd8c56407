// Package keepalive deduplicates backend health pings across
// subscriptions. Connections that target the same backend share one
// Coordinator, keyed by the sanitized (base URL, credential) pair; the
// Coordinator probes the backend's health endpoint periodically while
// at least one subscription is registered, and goes quiet once the last
// one deregisters.
//
// Probe failures are reported as warnings only. A backend that fails
// its health check is never a reason to tear down subscriptions; the
// connection machines find out about a dead backend through their own
// transports.
package keepalive

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/pairstream/endpoint"
	"github.com/c360/pairstream/metric"
)

// DefaultProbeTimeout bounds each health probe request.
const DefaultProbeTimeout = 10 * time.Second

// Registry resolves Coordinators by backend identity. Construct one per
// process (or use Default) and share it between connections so that
// deduplication actually happens.
type Registry struct {
	mu     sync.Mutex
	coords map[registryKey]*Coordinator

	client  *http.Client
	logger  *slog.Logger
	metrics *metric.KeepAliveMetrics
}

type registryKey struct {
	baseURL    string
	credential string
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) { r.client = client }
}

// WithLogger sets the logger used for probe warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics attaches a keep-alive metric set.
func WithMetrics(m *metric.KeepAliveMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		coords: make(map[registryKey]*Coordinator),
		client: &http.Client{Timeout: DefaultProbeTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// GetOrCreate returns the single Coordinator for the sanitized
// (baseURL, credential) key, creating it on first use. The interval of
// an existing Coordinator is not changed by later calls.
func (r *Registry) GetOrCreate(baseURL, credential string, interval time.Duration) *Coordinator {
	key := registryKey{
		baseURL:    endpoint.SanitizeBaseURL(baseURL),
		credential: credential,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.coords[key]; ok {
		return c
	}
	c := &Coordinator{
		baseURL:    key.baseURL,
		credential: credential,
		interval:   interval,
		client:     r.client,
		logger:     r.logger,
		metrics:    r.metrics,
		ids:        make(map[string]struct{}),
	}
	r.coords[key] = c
	return c
}

// Shutdown stops every Coordinator in the registry and forgets them.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	coords := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		coords = append(coords, c)
	}
	r.coords = make(map[registryKey]*Coordinator)
	r.mu.Unlock()

	for _, c := range coords {
		c.Stop()
	}
}

// Coordinator owns the periodic health probe for one backend. The
// probe runs while the registered-subscription set is non-empty.
type Coordinator struct {
	baseURL    string
	credential string
	interval   time.Duration
	client     *http.Client
	logger     *slog.Logger
	metrics    *metric.KeepAliveMetrics

	mu   sync.Mutex
	ids  map[string]struct{}
	stop chan struct{}
}

// Register adds a subscription id to the active set. The first
// registration fires an immediate probe and starts the periodic timer.
// Registering an id that is already present is a no-op.
func (c *Coordinator) Register(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; ok {
		return
	}
	c.ids[id] = struct{}{}
	if c.metrics != nil {
		c.metrics.Registrations.Inc()
	}

	if len(c.ids) == 1 && c.stop == nil {
		c.stop = make(chan struct{})
		go c.run(c.stop)
	}
}

// Unregister removes a subscription id. When the active set becomes
// empty the periodic timer stops; no further probes occur until a new
// registration. Unregistering an unknown id is a no-op.
func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; !ok {
		return
	}
	delete(c.ids, id)
	if c.metrics != nil {
		c.metrics.Registrations.Dec()
	}

	if len(c.ids) == 0 {
		c.stopLocked()
	}
}

// Stop cancels the periodic timer unconditionally, regardless of
// remaining registrations. Meant for full teardown.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// ActiveCount returns the number of registered subscriptions.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.ids)
}

// Running reports whether the periodic probe is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stop != nil
}

func (c *Coordinator) run(stop chan struct{}) {
	c.probe()

	if c.interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.probe()
		}
	}
}

// probe issues one health-check request. Failures are logged and
// counted; they never mutate the registration set.
func (c *Coordinator) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.HealthURL(c.baseURL), nil)
	if err != nil {
		c.warn("building health probe request failed", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.client.Do(req)
	if err != nil {
		c.warn("health probe failed", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("health probe returned non-success status",
			"base_url", c.baseURL, "status", resp.StatusCode)
		if c.metrics != nil {
			c.metrics.Probes.WithLabelValues("unhealthy").Inc()
		}
		return
	}

	if c.metrics != nil {
		c.metrics.Probes.WithLabelValues("ok").Inc()
	}
}

func (c *Coordinator) warn(msg string, err error) {
	c.logger.Warn(msg, "base_url", c.baseURL, "error", err)
	if c.metrics != nil {
		c.metrics.Probes.WithLabelValues("error").Inc()
	}
}

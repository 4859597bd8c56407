// Package multi composes many independent stream connections against
// one backend under a single façade. Each subscription keeps its own
// state machine and transport; failures on one never touch another.
package multi

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c360/pairstream/errors"
	"github.com/c360/pairstream/health"
	"github.com/c360/pairstream/keepalive"
	"github.com/c360/pairstream/metric"
	"github.com/c360/pairstream/stream"
)

// Subscription names one feed to consume. An empty StreamID gets a
// generated one at construction.
type Subscription struct {
	StreamID string
	Target   string
}

// Config describes a set of subscriptions sharing one base URL and
// credential. The shared callbacks receive a per-stream Context so the
// consumer can multiplex feeds by id.
type Config struct {
	BaseURL       string
	Credential    string
	Subscriptions []Subscription

	// ReconnectDelay and KeepAliveInterval apply to every subscription.
	// Nil selects the stream package defaults.
	ReconnectDelay    *time.Duration
	KeepAliveInterval *time.Duration

	Callbacks stream.Callbacks

	Logger     *slog.Logger
	Metrics    *metric.StreamMetrics
	KeepAlive  *keepalive.Registry
	HTTPClient *http.Client
}

// MultiStream owns N connections established at construction. The set
// is immutable afterwards; only Start/Stop state changes.
type MultiStream struct {
	logger  *slog.Logger
	ids     []string
	streams map[string]*stream.Connection
	monitor *health.Monitor
}

// New builds one connection per subscription. It fails fast if any
// subscription is invalid or if two subscriptions share an id; no
// transport is opened until StartAll.
func New(cfg Config) (*MultiStream, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &MultiStream{
		logger:  logger,
		streams: make(map[string]*stream.Connection, len(cfg.Subscriptions)),
		monitor: health.NewMonitor(),
	}

	for _, sub := range cfg.Subscriptions {
		id := sub.StreamID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := m.streams[id]; dup {
			return nil, errors.WrapInvalid(
				stderrors.New("duplicate stream id "+id), "multi", "New")
		}

		conn, err := stream.NewConnection(stream.Config{
			BaseURL:           cfg.BaseURL,
			Target:            sub.Target,
			Credential:        cfg.Credential,
			StreamID:          id,
			ReconnectDelay:    cfg.ReconnectDelay,
			KeepAliveInterval: cfg.KeepAliveInterval,
			Callbacks:         m.wrapCallbacks(cfg.Callbacks),
			Logger:            logger,
			Metrics:           cfg.Metrics,
			KeepAlive:         cfg.KeepAlive,
			HTTPClient:        cfg.HTTPClient,
		})
		if err != nil {
			return nil, err
		}

		m.ids = append(m.ids, id)
		m.streams[id] = conn
		m.monitor.Update(id, health.NewUnhealthy(id, stream.StateDisconnected.String()))
	}

	return m, nil
}

// wrapCallbacks threads state transitions through the health monitor
// before handing them to the caller. The Context already carries the
// stream id, so one wrapper serves every connection.
func (m *MultiStream) wrapCallbacks(cb stream.Callbacks) stream.Callbacks {
	wrapped := cb
	wrapped.OnStateChange = func(state stream.State, ctx stream.Context) {
		m.monitor.Update(ctx.StreamID, statusFor(ctx.StreamID, state))
		if cb.OnStateChange != nil {
			cb.OnStateChange(state, ctx)
		}
	}
	return wrapped
}

func statusFor(id string, state stream.State) health.Status {
	switch state {
	case stream.StateConnected:
		return health.NewHealthy(id, state.String())
	case stream.StateConnecting, stream.StateReconnecting:
		return health.NewDegraded(id, state.String())
	default:
		return health.NewUnhealthy(id, state.String())
	}
}

// StartAll starts every owned connection. A failure starting one does
// not prevent the others from starting; all errors are joined.
func (m *MultiStream) StartAll() error {
	var errs []error
	for _, id := range m.ids {
		if err := m.streams[id].Start(); err != nil {
			m.logger.Error("failed to start stream", "stream", id, "error", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// StopAll stops every owned connection, joining any errors.
func (m *MultiStream) StopAll() error {
	var errs []error
	for _, id := range m.ids {
		if err := m.streams[id].Stop(); err != nil {
			m.logger.Error("failed to stop stream", "stream", id, "error", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Stream returns the connection for id, if it exists.
func (m *MultiStream) Stream(id string) (*stream.Connection, bool) {
	conn, ok := m.streams[id]
	return conn, ok
}

// StreamIDs returns the subscription ids in construction order.
func (m *MultiStream) StreamIDs() []string {
	return append([]string(nil), m.ids...)
}

// StreamCount returns the number of owned connections.
func (m *MultiStream) StreamCount() int {
	return len(m.ids)
}

// Health folds the per-stream connection states into one status:
// healthy when every stream is connected, unhealthy when none are,
// degraded otherwise.
func (m *MultiStream) Health() health.Status {
	return m.monitor.Aggregate("multistream")
}

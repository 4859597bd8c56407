package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/pairstream/endpoint"
	"github.com/c360/pairstream/event"
	"github.com/c360/pairstream/keepalive"
	"github.com/c360/pairstream/metric"
)

// Defaults applied when the corresponding Config field is nil.
const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second
)

// Context identifies the source subscription in callback invocations,
// so a consumer fed by a MultiStream can multiplex feeds by id. It is
// derived per call and carries no other state.
type Context struct {
	StreamID string
}

// Callbacks is the capability set a connection dispatches into. Every
// field is optional; a nil callback is simply skipped.
type Callbacks struct {
	// OnBatch is invoked once per pairs message with the full batch,
	// before any OnPair call for that message.
	OnBatch func(batch event.Batch, ctx Context)
	// OnPair is invoked once per pair element, in array order.
	OnPair func(pair event.Pair, ctx Context)
	// OnError receives classified transport errors and parse errors.
	OnError func(err error, ctx Context)
	// OnStateChange fires exactly once per state transition, in the
	// order transitions occur.
	OnStateChange func(state State, ctx Context)
}

// Config describes one subscription. It is immutable once passed to
// NewConnection.
type Config struct {
	// BaseURL is the backend base URL. Trailing slashes are stripped.
	BaseURL string
	// Target is the opaque page identifier; it is percent-encoded into
	// the events URL losslessly.
	Target string
	// Credential is attached as a bearer authorization header on the
	// stream request and on health probes.
	Credential string
	// StreamID optionally names this subscription; it is carried in the
	// callback Context.
	StreamID string

	// ReconnectDelay is the fixed delay before a reconnect attempt after
	// a transient error. Nil selects DefaultReconnectDelay; a
	// non-positive value disables the connection's own scheduling,
	// signaling that the caller manages retries itself.
	ReconnectDelay *time.Duration
	// KeepAliveInterval is the shared health-probe interval for this
	// backend. Nil selects DefaultKeepAliveInterval; a non-positive
	// value means this subscription never registers for keep-alive.
	KeepAliveInterval *time.Duration

	Callbacks Callbacks

	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Metrics optionally records connection metrics.
	Metrics *metric.StreamMetrics
	// KeepAlive is the registry used to share probers between
	// connections. Nil selects the process-wide default registry.
	KeepAlive *keepalive.Registry
	// HTTPClient overrides the transport's HTTP client, mainly for
	// tests.
	HTTPClient *http.Client
}

// Validate fails fast on configurations that can never connect.
func (c *Config) Validate() error {
	if err := endpoint.ValidateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if err := endpoint.ValidateTarget(c.Target); err != nil {
		return err
	}
	return endpoint.ValidateCredential(c.Credential)
}

func (c *Config) reconnectDelay() time.Duration {
	if c.ReconnectDelay == nil {
		return DefaultReconnectDelay
	}
	return *c.ReconnectDelay
}

func (c *Config) keepAliveInterval() time.Duration {
	if c.KeepAliveInterval == nil {
		return DefaultKeepAliveInterval
	}
	return *c.KeepAliveInterval
}

// Duration is a convenience for populating the optional duration
// fields.
func Duration(d time.Duration) *time.Duration {
	return &d
}

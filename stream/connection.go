// Package stream implements the per-subscription connection state
// machine: it owns the SSE transport, dispatches decoded events to the
// configured callbacks, classifies transport errors, and drives
// reconnection with a single fixed-delay timer.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	sse "github.com/r3labs/sse/v2"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/c360/pairstream/endpoint"
	"github.com/c360/pairstream/errors"
	"github.com/c360/pairstream/event"
	"github.com/c360/pairstream/keepalive"
)

// Connection is one logical subscription to a pair feed. Start and
// Stop return immediately; all transport work happens on internal
// goroutines, and results surface through the configured callbacks.
//
// A connection owns at most one open transport and at most one pending
// reconnect timer at any time.
type Connection struct {
	cfg      Config
	logger   *slog.Logger
	registry *keepalive.Registry
	// regID identifies this machine in the keep-alive registry; it falls
	// back to a generated id so unnamed subscriptions still refcount
	// correctly.
	regID string

	mu         sync.Mutex
	state      State
	closed     bool
	gen        uint64
	cancel     context.CancelFunc
	timer      *time.Timer
	lastErr    error
	coord      *keepalive.Coordinator
	registered bool
}

// NewConnection validates the configuration and builds a connection in
// state disconnected. Configuration errors are the only errors this
// package returns synchronously.
func NewConnection(cfg Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "stream", "NewConnection")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamID != "" {
		logger = logger.With("stream", cfg.StreamID)
	}

	registry := cfg.KeepAlive
	if registry == nil {
		registry = keepalive.Default()
	}

	regID := cfg.StreamID
	if regID == "" {
		regID = uuid.NewString()
	}

	return &Connection{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		regID:    regID,
		state:    StateDisconnected,
	}, nil
}

// Start opens the stream. Callable from any state: a pending reconnect
// timer is cancelled, a previously open transport is closed, and a
// fresh attempt begins. The keep-alive registration is a no-op if
// already in place.
func (c *Connection) Start() error {
	return c.start(false)
}

func (c *Connection) start(fromTimer bool) error {
	c.mu.Lock()
	if fromTimer && c.closed {
		// Stop raced with the timer firing; stay down.
		c.mu.Unlock()
		return nil
	}
	if !fromTimer {
		c.closed = false
	}

	c.clearTimerLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	gen := c.gen

	st, changed := c.setStateLocked(StateConnecting)

	if interval := c.cfg.keepAliveInterval(); interval > 0 && !c.registered {
		c.coord = c.registry.GetOrCreate(c.cfg.BaseURL, c.cfg.Credential, interval)
		c.coord.Register(c.regID)
		c.registered = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.emit(st, changed)
	go c.run(ctx, gen)
	return nil
}

// Stop closes the stream from any state: the pending reconnect timer
// is cancelled, the keep-alive registration released, the transport
// closed, and the state becomes disconnected. Errors from a transport
// attempt that races with Stop never trigger reconnection.
func (c *Connection) Stop() error {
	c.mu.Lock()
	c.closed = true
	c.clearTimerLocked()
	c.gen++ // invalidate any in-flight attempt
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	st, changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.deregisterKeepAlive()
	c.setActiveGauge(0)
	c.emit(st, changed)
	return nil
}

// State returns the current state. Pure read; never blocks on I/O.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent error surfaced by the transport,
// if any.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// StreamID returns the configured subscription id, which may be empty.
func (c *Connection) StreamID() string {
	return c.cfg.StreamID
}

// run performs one transport attempt. gen ties every callback from
// this attempt to the machine generation that launched it, so results
// arriving after a Stop or a newer Start are discarded.
func (c *Connection) run(ctx context.Context, gen uint64) {
	if m := c.cfg.Metrics; m != nil {
		m.ConnectAttempts.WithLabelValues(c.metricLabel()).Inc()
	}

	client := sse.NewClient(endpoint.EventsURL(c.cfg.BaseURL, c.cfg.Target))
	client.Headers["Authorization"] = "Bearer " + c.cfg.Credential
	// The machine owns reconnection; the transport must never retry on
	// its own.
	client.ReconnectStrategy = &backoff.StopBackOff{}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return errors.NewStatusError(resp.StatusCode)
		}
		return nil
	}
	if c.cfg.HTTPClient != nil {
		client.Connection = c.cfg.HTTPClient
	}
	client.OnConnect(func(*sse.Client) {
		c.transportConnected(gen)
	})

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		c.handleMessage(gen, msg)
	})
	if err == nil {
		err = errors.WrapTransient(errors.ErrStreamEnded, "stream", "subscribe")
	}
	c.handleDisconnect(gen, err)
}

// transportConnected moves connecting/reconnecting to connected.
func (c *Connection) transportConnected(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	st, changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	if changed {
		c.setActiveGauge(1)
		c.logger.Debug("stream connected", "base_url", c.cfg.BaseURL)
	}
	c.emit(st, changed)
}

// handleMessage dispatches one inbound SSE message according to the
// event contract: parse, connected, ping, pairs — in that order.
func (c *Connection) handleMessage(gen uint64, msg *sse.Event) {
	if len(msg.Data) == 0 {
		return
	}

	c.mu.Lock()
	stale := gen != c.gen || c.closed
	c.mu.Unlock()
	if stale {
		return
	}

	env, err := event.Decode(msg.Data)
	if err != nil {
		// Malformed payloads are reported but never change state.
		c.reportError(errors.WrapInvalid(err, "stream", "decode"))
		return
	}

	switch {
	case env.IsConnected():
		c.transportConnected(gen)

	case env.IsPing():
		// Keep-alive chatter; no callback fires.

	case env.IsShutdown():
		c.logger.Info("backend announced shutdown", "base_url", c.cfg.BaseURL)
		c.handleDisconnect(gen, errors.WrapTransient(errors.ErrServerShutdown, "stream", "subscribe"))

	case env.HasPairs():
		c.dispatchBatch(env.Batch())
	}
}

func (c *Connection) dispatchBatch(batch event.Batch) {
	ctx := c.callbackContext()
	if cb := c.cfg.Callbacks.OnBatch; cb != nil {
		cb(batch, ctx)
	}
	if cb := c.cfg.Callbacks.OnPair; cb != nil {
		for _, pair := range batch.Pairs {
			cb(pair, ctx)
		}
	}
	if m := c.cfg.Metrics; m != nil {
		m.EventsDispatched.WithLabelValues(c.metricLabel(), batch.EventType).Inc()
	}
}

// handleDisconnect consumes the end of one transport attempt: it
// classifies the error and either parks the machine (fatal) or
// schedules the single reconnect timer (transient). Stale attempts —
// a Stop or newer Start bumped the generation — are ignored entirely.
func (c *Connection) handleDisconnect(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++ // this attempt is settled
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.lastErr = err
	closed := c.closed
	c.mu.Unlock()

	c.setActiveGauge(0)
	class := errors.Classify(err)
	c.reportError(err)

	if class.Fatal() {
		c.logger.Warn("stream failed fatally, not retrying",
			"class", class.String(), "error", err)
		c.deregisterKeepAlive()
		c.mu.Lock()
		st, changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.emit(st, changed)
		return
	}

	if closed {
		// Stop already transitioned the machine; nothing to schedule.
		return
	}

	c.mu.Lock()
	if c.closed {
		// Stop raced with the error callback; stay down.
		c.mu.Unlock()
		return
	}
	st, changed := c.setStateLocked(StateReconnecting)
	c.mu.Unlock()
	c.emit(st, changed)

	delay := c.cfg.reconnectDelay()
	if delay <= 0 {
		// Caller manages retries itself.
		return
	}

	c.mu.Lock()
	scheduled := false
	if !c.closed && c.timer == nil {
		c.timer = time.AfterFunc(delay, c.onReconnectTimer)
		scheduled = true
	}
	c.mu.Unlock()

	if scheduled {
		c.logger.Debug("reconnect scheduled", "delay", delay, "error", err)
		if m := c.cfg.Metrics; m != nil {
			m.Reconnects.WithLabelValues(c.metricLabel()).Inc()
		}
	}
}

func (c *Connection) onReconnectTimer() {
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()

	_ = c.start(true)
}

func (c *Connection) reportError(err error) {
	if m := c.cfg.Metrics; m != nil {
		m.ErrorsTotal.WithLabelValues(c.metricLabel(), errors.Classify(err).String()).Inc()
	}
	if cb := c.cfg.Callbacks.OnError; cb != nil {
		cb(err, c.callbackContext())
	}
}

func (c *Connection) deregisterKeepAlive() {
	c.mu.Lock()
	coord, registered := c.coord, c.registered
	c.registered = false
	c.mu.Unlock()

	if registered && coord != nil {
		coord.Unregister(c.regID)
	}
}

// setStateLocked records a transition; callers emit outside the lock.
func (c *Connection) setStateLocked(s State) (State, bool) {
	if c.state == s {
		return s, false
	}
	c.state = s
	return s, true
}

func (c *Connection) emit(state State, changed bool) {
	if !changed {
		return
	}
	if cb := c.cfg.Callbacks.OnStateChange; cb != nil {
		cb(state, c.callbackContext())
	}
}

func (c *Connection) clearTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) callbackContext() Context {
	return Context{StreamID: c.cfg.StreamID}
}

func (c *Connection) metricLabel() string {
	if c.cfg.StreamID != "" {
		return c.cfg.StreamID
	}
	return "default"
}

func (c *Connection) setActiveGauge(v float64) {
	if m := c.cfg.Metrics; m != nil {
		m.ConnectionsActive.WithLabelValues(c.metricLabel()).Set(v)
	}
}

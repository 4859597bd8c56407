// Package testutil provides a scripted in-process actor backend for
// package tests: an SSE events endpoint whose stream can be fed,
// failed, and dropped on demand, plus a health endpoint that counts
// probes.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Backend is a fake actor backend. All methods are safe for concurrent
// use.
type Backend struct {
	srv *httptest.Server

	mu              sync.Mutex
	probeCount      int
	healthStatus    int
	connectCount    int
	connectFailures []int
	clients         map[int]*client
	nextClientID    int
	lastAuth        string
	lastPageURL     string
	sendConnected   bool
}

type client struct {
	ch   chan string
	done chan struct{}
}

// NewBackend starts a fake backend. By default it answers health probes
// with 200 and greets every new stream with a connected event.
func NewBackend() *Backend {
	b := &Backend{
		healthStatus:  http.StatusOK,
		clients:       make(map[int]*client),
		sendConnected: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", b.handleHealth)
	mux.HandleFunc("/events/dex/pairs", b.handleEvents)
	b.srv = httptest.NewServer(mux)
	return b
}

// URL returns the backend's base URL.
func (b *Backend) URL() string { return b.srv.URL }

// Close drops all clients and shuts the server down.
func (b *Backend) Close() {
	b.DropClients()
	b.srv.Close()
}

// ProbeCount returns how many health probes have been received.
func (b *Backend) ProbeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probeCount
}

// SetHealthStatus changes the status code returned by the health
// endpoint.
func (b *Backend) SetHealthStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthStatus = code
}

// ConnectCount returns how many stream connection attempts have been
// received, including failed ones.
func (b *Backend) ConnectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectCount
}

// ClientCount returns the number of currently connected streams.
func (b *Backend) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// FailNextConnect queues a status code with which the next stream
// connection attempt is rejected. Queued failures are consumed in
// order; once drained, connections succeed again.
func (b *Backend) FailNextConnect(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectFailures = append(b.connectFailures, status)
}

// SetSendConnected controls whether new streams are greeted with a
// connected event.
func (b *Backend) SetSendConnected(send bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendConnected = send
}

// LastAuth returns the Authorization header of the most recent request.
func (b *Backend) LastAuth() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth
}

// LastPageURL returns the decoded page_url of the most recent stream
// connection.
func (b *Backend) LastPageURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPageURL
}

// Send broadcasts one SSE message body to every connected stream.
func (b *Backend) Send(payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.clients {
		select {
		case c.ch <- payload:
		default:
		}
	}
}

// DropClients forcibly disconnects every connected stream, so clients
// observe a transport error.
func (b *Backend) DropClients() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[int]*client)
	b.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
}

func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.probeCount++
	b.lastAuth = r.Header.Get("Authorization")
	status := b.healthStatus
	b.mu.Unlock()

	w.WriteHeader(status)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (b *Backend) handleEvents(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.connectCount++
	b.lastAuth = r.Header.Get("Authorization")
	b.lastPageURL = r.URL.Query().Get("page_url")

	if len(b.connectFailures) > 0 {
		status := b.connectFailures[0]
		b.connectFailures = b.connectFailures[1:]
		b.mu.Unlock()
		http.Error(w, http.StatusText(status), status)
		return
	}

	c := &client{ch: make(chan string, 64), done: make(chan struct{})}
	id := b.nextClientID
	b.nextClientID++
	b.clients[id] = c
	sendConnected := b.sendConnected
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, id)
		b.mu.Unlock()
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if sendConnected {
		fmt.Fprint(w, "data: {\"event_type\":\"connected\"}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case msg := <-c.ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

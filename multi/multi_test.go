package multi

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/pairstream/event"
	"github.com/c360/pairstream/health"
	"github.com/c360/pairstream/keepalive"
	"github.com/c360/pairstream/stream"
	"github.com/c360/pairstream/testutil"
)

func newTestMulti(t *testing.T, backend *testutil.Backend, subs []Subscription, cb stream.Callbacks) *MultiStream {
	t.Helper()

	m, err := New(Config{
		BaseURL:           backend.URL(),
		Credential:        "secret",
		Subscriptions:     subs,
		ReconnectDelay:    stream.Duration(40 * time.Millisecond),
		KeepAliveInterval: stream.Duration(-1),
		Callbacks:         cb,
		KeepAlive:         keepalive.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.StopAll() })
	return m
}

func waitClients(t *testing.T, backend *testutil.Backend, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return backend.ClientCount() == n },
		2*time.Second, 5*time.Millisecond, "expected %d open transports", n)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{
		BaseURL:       "",
		Credential:    "secret",
		Subscriptions: []Subscription{{StreamID: "a", Target: "t"}},
	})
	assert.Error(t, err, "invalid base url must fail construction")

	_, err = New(Config{
		BaseURL:    "https://x.actor",
		Credential: "secret",
		Subscriptions: []Subscription{
			{StreamID: "a", Target: "t1"},
			{StreamID: "a", Target: "t2"},
		},
	})
	assert.Error(t, err, "duplicate stream ids must fail construction")
}

func TestGeneratedStreamIDs(t *testing.T) {
	m, err := New(Config{
		BaseURL:    "https://x.actor",
		Credential: "secret",
		Subscriptions: []Subscription{
			{Target: "t1"},
			{Target: "t2"},
		},
	})
	require.NoError(t, err)

	ids := m.StreamIDs()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEmpty(t, ids[1])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestLookups(t *testing.T) {
	m, err := New(Config{
		BaseURL:    "https://x.actor",
		Credential: "secret",
		Subscriptions: []Subscription{
			{StreamID: "sol", Target: "https://dex.example/sol"},
			{StreamID: "eth", Target: "https://dex.example/eth"},
			{StreamID: "bsc", Target: "https://dex.example/bsc"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, m.StreamCount())
	assert.Equal(t, []string{"sol", "eth", "bsc"}, m.StreamIDs(), "construction order is preserved")

	conn, ok := m.Stream("eth")
	require.True(t, ok)
	assert.Equal(t, "eth", conn.StreamID())

	_, ok = m.Stream("nope")
	assert.False(t, ok)
}

func TestStartAllStopAll(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()

	m := newTestMulti(t, backend, []Subscription{
		{StreamID: "sol", Target: "https://dex.example/sol"},
		{StreamID: "eth", Target: "https://dex.example/eth"},
	}, stream.Callbacks{})

	require.NoError(t, m.StartAll())
	waitClients(t, backend, 2)

	for _, id := range m.StreamIDs() {
		conn, _ := m.Stream(id)
		require.Eventually(t, func() bool { return conn.State() == stream.StateConnected },
			2*time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, health.StatusHealthy, m.Health().Status)

	require.NoError(t, m.StopAll())
	waitClients(t, backend, 0)
	for _, id := range m.StreamIDs() {
		conn, _ := m.Stream(id)
		assert.Equal(t, stream.StateDisconnected, conn.State())
	}
	assert.Equal(t, health.StatusUnhealthy, m.Health().Status)
}

func TestCallbackContextCarriesStreamID(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()

	var mu sync.Mutex
	seen := make(map[string]int)
	cb := stream.Callbacks{
		OnBatch: func(_ event.Batch, ctx stream.Context) {
			mu.Lock()
			seen[ctx.StreamID]++
			mu.Unlock()
		},
	}

	m := newTestMulti(t, backend, []Subscription{
		{StreamID: "sol", Target: "https://dex.example/sol"},
		{StreamID: "eth", Target: "https://dex.example/eth"},
	}, cb)

	require.NoError(t, m.StartAll())
	waitClients(t, backend, 2)

	backend.Send(`{"event_type":"pairs","data":{"pairs":[{"pairAddress":"0xa"}]}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["sol"] == 1 && seen["eth"] == 1
	}, 2*time.Second, 5*time.Millisecond, "each stream multiplexes with its own id")
}

func TestFailureIsolation(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	// Exactly one of the connects is rejected with a fatal status.
	backend.FailNextConnect(http.StatusUnauthorized)

	m := newTestMulti(t, backend, []Subscription{
		{StreamID: "sol", Target: "https://dex.example/sol"},
		{StreamID: "eth", Target: "https://dex.example/eth"},
		{StreamID: "bsc", Target: "https://dex.example/bsc"},
	}, stream.Callbacks{})

	require.NoError(t, m.StartAll())

	// The two unaffected streams connect and stay connected.
	waitClients(t, backend, 2)

	counts := func() (connected, disconnected int) {
		for _, id := range m.StreamIDs() {
			conn, _ := m.Stream(id)
			switch conn.State() {
			case stream.StateConnected:
				connected++
			case stream.StateDisconnected:
				disconnected++
			}
		}
		return
	}
	require.Eventually(t, func() bool {
		connected, disconnected := counts()
		return connected == 2 && disconnected == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, health.StatusDegraded, m.Health().Status)

	// The survivors keep receiving data.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, backend.ClientCount())
}

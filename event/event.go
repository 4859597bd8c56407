// Package event defines the inbound message contract of the pair feed:
// the JSON envelope carried in each SSE message, the typed pair and
// batch values dispatched to callbacks, and the control sub-protocol
// (connected, ping, shutdown).
package event

import (
	"encoding/json"
	"fmt"
)

// Event-type tags carried by the envelope.
const (
	TypeConnected = "connected"
	TypePing      = "ping"
	TypePairs     = "pairs"
	TypeShutdown  = "shutdown"
)

// Token identifies one side of a trading pair.
type Token struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

// Liquidity holds the liquidity figures of a pair.
type Liquidity struct {
	USD   float64 `json:"usd,omitempty"`
	Base  float64 `json:"base,omitempty"`
	Quote float64 `json:"quote,omitempty"`
}

// Pair is one pair record as produced by the backend. Producers vary in
// which fields they populate; absent fields stay at their zero value.
type Pair struct {
	ChainID       string             `json:"chainId,omitempty"`
	DexID         string             `json:"dexId,omitempty"`
	URL           string             `json:"url,omitempty"`
	PairAddress   string             `json:"pairAddress,omitempty"`
	BaseToken     Token              `json:"baseToken,omitempty"`
	QuoteToken    Token              `json:"quoteToken,omitempty"`
	PriceNative   string             `json:"priceNative,omitempty"`
	PriceUsd      string             `json:"priceUsd,omitempty"`
	Volume        map[string]float64 `json:"volume,omitempty"`
	PriceChange   map[string]float64 `json:"priceChange,omitempty"`
	Liquidity     *Liquidity         `json:"liquidity,omitempty"`
	FDV           float64            `json:"fdv,omitempty"`
	MarketCap     float64            `json:"marketCap,omitempty"`
	PairCreatedAt int64              `json:"pairCreatedAt,omitempty"`
}

// Stats is the aggregate block some producers attach to a batch. Its
// shape varies by producer, so it is kept as decoded JSON.
type Stats map[string]any

// payload holds the fields that may appear either at the top level of
// an envelope or nested under "data", depending on the producer.
type payload struct {
	EventType string  `json:"event_type,omitempty"`
	Stats     Stats   `json:"stats,omitempty"`
	Pairs     []Pair  `json:"pairs,omitempty"`
	Ping      bool    `json:"ping,omitempty"`
	Timestamp Instant `json:"timestamp,omitempty"`
}

// Envelope is one decoded inbound message. The "data" block, when
// present, is the effective payload; top-level fields are the fallback
// for producers that flatten it.
type Envelope struct {
	payload
	Data *payload `json:"data,omitempty"`
}

// Decode parses the JSON body of one SSE message.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	return &env, nil
}

// effective returns the payload block the envelope carries: the nested
// "data" block when present, the top-level fields otherwise. The
// event-type tag falls back to the top level when the nested block
// omits it.
func (e *Envelope) effective() payload {
	if e.Data == nil {
		return e.payload
	}
	p := *e.Data
	if p.EventType == "" {
		p.EventType = e.EventType
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = e.Timestamp
	}
	return p
}

// Type returns the effective event-type tag, which may be empty.
func (e *Envelope) Type() string {
	return e.effective().EventType
}

// IsConnected reports whether this message is the logical "connected"
// notification.
func (e *Envelope) IsConnected() bool {
	return e.Type() == TypeConnected
}

// IsPing reports whether this message is a keep-alive ping, either by
// tag or by ping marker.
func (e *Envelope) IsPing() bool {
	p := e.effective()
	return p.EventType == TypePing || p.Ping
}

// IsShutdown reports whether the backend announced a shutdown.
func (e *Envelope) IsShutdown() bool {
	return e.Type() == TypeShutdown
}

// HasPairs reports whether this message should dispatch a batch: it is
// tagged "pairs" or carries a pairs collection.
func (e *Envelope) HasPairs() bool {
	p := e.effective()
	return p.EventType == TypePairs || len(p.Pairs) > 0
}

// Batch is the value dispatched once per pairs message. It is built
// fresh per inbound message and not retained after dispatch.
type Batch struct {
	EventType string
	Stats     Stats
	Pairs     []Pair
	Timestamp Instant
}

// Batch builds the batch value for this message.
func (e *Envelope) Batch() Batch {
	p := e.effective()
	eventType := p.EventType
	if eventType == "" {
		eventType = TypePairs
	}
	return Batch{
		EventType: eventType,
		Stats:     p.Stats,
		Pairs:     p.Pairs,
		Timestamp: p.Timestamp,
	}
}

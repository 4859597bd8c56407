package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

func TestDecodeNestedData(t *testing.T) {
	raw := `{
		"event_type": "pairs",
		"data": {
			"stats": {"totalPairs": 2},
			"pairs": [
				{"pairAddress": "0xaaa", "priceUsd": "1.25"},
				{"pairAddress": "0xbbb", "priceUsd": "0.50"}
			]
		},
		"timestamp": 1724700000000
	}`

	env, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, TypePairs, env.Type())
	assert.True(t, env.HasPairs())
	assert.False(t, env.IsPing())
	assert.False(t, env.IsConnected())

	batch := env.Batch()
	require.Len(t, batch.Pairs, 2)
	assert.Equal(t, "0xaaa", batch.Pairs[0].PairAddress)
	assert.Equal(t, "0xbbb", batch.Pairs[1].PairAddress)
	assert.Equal(t, "1.25", batch.Pairs[0].PriceUsd)
	require.NotNil(t, batch.Stats)
	assert.EqualValues(t, 2, batch.Stats["totalPairs"])
	assert.Equal(t, time.UnixMilli(1724700000000).UTC(), batch.Timestamp.Time)
}

func TestDecodeTopLevelFallback(t *testing.T) {
	// Some producers flatten the payload instead of nesting it in "data".
	raw := `{"pairs": [{"pairAddress": "0xccc"}], "stats": {"totalPairs": 1}}`

	env, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.True(t, env.HasPairs())
	batch := env.Batch()
	require.Len(t, batch.Pairs, 1)
	assert.Equal(t, "0xccc", batch.Pairs[0].PairAddress)
	// Untagged pairs batches are normalized to the pairs tag.
	assert.Equal(t, TypePairs, batch.EventType)
}

func TestDecodeDataBlockWins(t *testing.T) {
	raw := `{
		"pairs": [{"pairAddress": "outer"}],
		"data": {"pairs": [{"pairAddress": "inner"}]}
	}`

	env, err := Decode([]byte(raw))
	require.NoError(t, err)

	batch := env.Batch()
	require.Len(t, batch.Pairs, 1)
	assert.Equal(t, "inner", batch.Pairs[0].PairAddress)
}

func TestControlMessages(t *testing.T) {
	env, err := Decode([]byte(`{"event_type": "connected"}`))
	require.NoError(t, err)
	assert.True(t, env.IsConnected())
	assert.False(t, env.HasPairs())

	env, err = Decode([]byte(`{"event_type": "ping"}`))
	require.NoError(t, err)
	assert.True(t, env.IsPing())

	// Ping marker without a tag.
	env, err = Decode([]byte(`{"ping": true}`))
	require.NoError(t, err)
	assert.True(t, env.IsPing())

	// Ping marker nested in data.
	env, err = Decode([]byte(`{"data": {"ping": true}}`))
	require.NoError(t, err)
	assert.True(t, env.IsPing())

	env, err = Decode([]byte(`{"event_type": "shutdown"}`))
	require.NoError(t, err)
	assert.True(t, env.IsShutdown())
}

func TestTagFallsBackToTopLevel(t *testing.T) {
	raw := `{"event_type": "pairs", "data": {"pairs": [{"pairAddress": "0x1"}]}}`
	env, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, TypePairs, env.Type())
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(``))
	assert.Error(t, err)
}

func TestPairFields(t *testing.T) {
	raw := `{"data": {"pairs": [{
		"chainId": "solana",
		"dexId": "raydium",
		"url": "https://dex.example/solana/0xddd",
		"pairAddress": "0xddd",
		"baseToken": {"address": "0xbase", "name": "Base", "symbol": "BASE"},
		"quoteToken": {"address": "0xquote", "name": "Quote", "symbol": "QUOTE"},
		"priceNative": "0.001",
		"priceUsd": "0.15",
		"volume": {"h24": 12345.6},
		"priceChange": {"h1": -2.5},
		"liquidity": {"usd": 50000, "base": 100, "quote": 200},
		"fdv": 1000000,
		"pairCreatedAt": 1724000000000
	}]}}`

	env, err := Decode([]byte(raw))
	require.NoError(t, err)
	pairs := env.Batch().Pairs
	require.Len(t, pairs, 1)

	p := pairs[0]
	assert.Equal(t, "solana", p.ChainID)
	assert.Equal(t, "raydium", p.DexID)
	assert.Equal(t, "BASE", p.BaseToken.Symbol)
	assert.Equal(t, "QUOTE", p.QuoteToken.Symbol)
	assert.InDelta(t, 12345.6, p.Volume["h24"], 0.001)
	assert.InDelta(t, -2.5, p.PriceChange["h1"], 0.001)
	require.NotNil(t, p.Liquidity)
	assert.InDelta(t, 50000, p.Liquidity.USD, 0.001)
	assert.EqualValues(t, 1724000000000, p.PairCreatedAt)
}

func TestInstantDecoding(t *testing.T) {
	var p payload

	// RFC 3339 string.
	require.NoError(t, jsonUnmarshal(`{"timestamp": "2026-08-27T12:00:00Z"}`, &p))
	assert.Equal(t, time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC), p.Timestamp.Time)

	// Unix seconds.
	p = payload{}
	require.NoError(t, jsonUnmarshal(`{"timestamp": 1724700000}`, &p))
	assert.Equal(t, time.Unix(1724700000, 0).UTC(), p.Timestamp.Time)

	// Null and absent both leave the zero value.
	p = payload{}
	require.NoError(t, jsonUnmarshal(`{"timestamp": null}`, &p))
	assert.True(t, p.Timestamp.IsZero())

	p = payload{}
	require.NoError(t, jsonUnmarshal(`{}`, &p))
	assert.True(t, p.Timestamp.IsZero())

	// Garbage is rejected.
	assert.Error(t, jsonUnmarshal(`{"timestamp": "yesterday"}`, &payload{}))
}

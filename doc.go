// Package pairstream turns the Server-Sent-Event pair feeds of a remote
// actor backend into resilient, observable Go subscriptions.
//
// # Architecture
//
// The module is organized as a small set of root-level packages, leaf
// first:
//
//	┌─────────────────────────────────────┐
//	│        multi.MultiStream            │  N subscriptions, one façade,
//	│   (fan-out, failure isolation)      │  per-stream callback contexts
//	└──────────────────┬──────────────────┘
//	                   │ owns N
//	┌──────────────────┴──────────────────┐
//	│        stream.Connection            │  per-subscription state machine:
//	│ disconnected → connecting →         │  transport lifecycle, dispatch,
//	│ connected → reconnecting            │  error classification, one
//	└───────┬─────────────────┬───────────┘  reconnect timer at most
//	        │ registers with  │ decodes via
//	┌───────┴────────┐ ┌──────┴──────────┐
//	│   keepalive    │ │     event       │  shared, reference-counted
//	│ (one prober    │ │ (batch / pair   │  health probing per backend;
//	│  per backend)  │ │  envelopes)     │  typed inbound contract
//	└────────────────┘ └─────────────────┘
//
// Supporting packages: endpoint (URL building and validation), errors
// (classified errors with a total fatal/transient mapping), metric
// (Prometheus instrumentation), health (passive status aggregation),
// config (YAML configuration for the CLI), and pkg/retry (bounded
// backoff for startup checks).
//
// # Connection lifecycle
//
// Each stream.Connection owns exactly one SSE transport at a time.
// Transport errors are classified by the errors package: authentication
// failures and other 4xx responses are fatal (the request can never
// succeed unchanged, so the machine parks in disconnected), everything
// else is transient and schedules a single fixed-delay reconnect.
// Stopping a connection cancels any pending reconnect and suppresses
// reconnection from errors that race with the stop.
//
// Subscriptions that target the same backend share one keep-alive
// prober, keyed by the sanitized (base URL, credential) pair, so a
// process with fifty subscriptions pings the backend once per interval
// rather than fifty times.
//
// # Usage
//
//	conn, err := stream.NewConnection(stream.Config{
//	    BaseURL:    "https://actor.example",
//	    Target:     "https://dexscreener.com/solana",
//	    Credential: os.Getenv("ACTOR_TOKEN"),
//	    Callbacks: stream.Callbacks{
//	        OnBatch: func(b event.Batch, ctx stream.Context) { ... },
//	    },
//	})
//	if err != nil { ... }
//	if err := conn.Start(); err != nil { ... }
//	defer conn.Stop()
//
// For several feeds against one backend, construct a multi.MultiStream
// instead and multiplex by the stream id carried in the callback
// context.
package pairstream

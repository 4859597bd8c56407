// Package main implements the entry point for the pairstream CLI.
// pairstream subscribes to one or more DEX pair feeds described in a
// YAML config file and prints every batch as a JSON line on stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/pairstream/config"
	"github.com/c360/pairstream/endpoint"
	"github.com/c360/pairstream/event"
	"github.com/c360/pairstream/keepalive"
	"github.com/c360/pairstream/metric"
	"github.com/c360/pairstream/multi"
	"github.com/c360/pairstream/pkg/retry"
	"github.com/c360/pairstream/stream"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "pairstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "pairstream.yaml", "path to the YAML config file")
	validate := flag.Bool("validate", false, "validate the config and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *validate {
		logger.Info("configuration is valid", "path", *configPath)
		return nil
	}

	credential, err := cfg.Credential()
	if err != nil {
		return err
	}

	registry := metric.NewRegistry()
	streamMetrics, err := metric.NewStreamMetrics(registry)
	if err != nil {
		return err
	}
	keepAliveMetrics, err := metric.NewKeepAliveMetrics(registry)
	if err != nil {
		return err
	}

	keepAlive := keepalive.NewRegistry(
		keepalive.WithLogger(logger),
		keepalive.WithMetrics(keepAliveMetrics),
	)
	defer keepAlive.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := waitForBackend(ctx, cfg.BaseURL, credential); err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}

	subs := make([]multi.Subscription, 0, len(cfg.Streams))
	for _, s := range cfg.Streams {
		subs = append(subs, multi.Subscription{StreamID: s.ID, Target: s.Target})
	}

	out := json.NewEncoder(os.Stdout)
	streams, err := multi.New(multi.Config{
		BaseURL:           cfg.BaseURL,
		Credential:        credential,
		Subscriptions:     subs,
		ReconnectDelay:    cfg.ReconnectDelayPtr(),
		KeepAliveInterval: cfg.KeepAliveIntervalPtr(),
		Callbacks:         callbacks(out, logger),
		Logger:            logger,
		Metrics:           streamMetrics,
		KeepAlive:         keepAlive,
	})
	if err != nil {
		return err
	}

	if err := streams.StartAll(); err != nil {
		logger.Warn("some streams failed to start", "error", err)
	}
	logger.Info("streaming", "streams", streams.StreamCount(), "base_url", cfg.BaseURL)

	<-ctx.Done()
	logger.Info("shutting down")
	return streams.StopAll()
}

// batchLine is the JSON record printed per batch.
type batchLine struct {
	Stream    string        `json:"stream"`
	EventType string        `json:"event_type"`
	Pairs     []event.Pair  `json:"pairs"`
	Stats     event.Stats   `json:"stats,omitempty"`
	Timestamp event.Instant `json:"timestamp"`
}

func callbacks(out *json.Encoder, logger *slog.Logger) stream.Callbacks {
	return stream.Callbacks{
		OnBatch: func(batch event.Batch, ctx stream.Context) {
			line := batchLine{
				Stream:    ctx.StreamID,
				EventType: batch.EventType,
				Pairs:     batch.Pairs,
				Stats:     batch.Stats,
				Timestamp: batch.Timestamp,
			}
			if err := out.Encode(line); err != nil {
				logger.Error("failed to write batch", "stream", ctx.StreamID, "error", err)
			}
		},
		OnError: func(err error, ctx stream.Context) {
			logger.Warn("stream error", "stream", ctx.StreamID, "error", err)
		},
		OnStateChange: func(state stream.State, ctx stream.Context) {
			logger.Info("stream state", "stream", ctx.StreamID, "state", state.String())
		},
	}
}

// waitForBackend polls the health endpoint until it answers, so the CLI
// fails fast on a bad credential instead of looping on fatal errors.
func waitForBackend(ctx context.Context, baseURL, credential string) error {
	client := &http.Client{Timeout: keepalive.DefaultProbeTimeout}
	url := endpoint.HealthURL(baseURL)

	return retry.Do(ctx, retry.Quick(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.NonRetryable(err)
		}
		req.Header.Set("Authorization", "Bearer "+credential)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode == http.StatusUnauthorized {
			return retry.NonRetryable(fmt.Errorf("health probe rejected: %s", resp.Status))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("health probe returned %s", resp.Status)
		}
		return nil
	})
}

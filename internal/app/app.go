// Package app wires the travel-map pipeline for one run: list statuses,
// filter them, fetch their polylines, merge local tracks and write the output.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/travel-map/internal/config"
	"github.com/Sternrassler/travel-map/internal/output"
	"github.com/Sternrassler/travel-map/internal/track"
	"github.com/Sternrassler/travel-map/pkg/client"
	"github.com/Sternrassler/travel-map/pkg/metrics"
	"github.com/Sternrassler/travel-map/pkg/pagination"
	"github.com/Sternrassler/travel-map/pkg/ratelimit"
	"github.com/Sternrassler/travel-map/pkg/status"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointStatuses = "statuses"
	EndpointPolyline = "polyline"
)

// Options configures a run.
type Options struct {
	Config config.Config

	// Token is the bearer credential; the caller reads it from wherever it lives.
	Token string

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper

	// Logger is the parent logger (default: the global logger).
	Logger *zerolog.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Statuses  int
	Kept      int
	Chunks    int
	Tracks    int
	Output    output.Result
	RateLimit ratelimit.State
	Duration  time.Duration
}

// Run executes the whole pipeline. Any failure aborts the run; nothing is
// written unless every fetch succeeded.
func Run(ctx context.Context, opts Options) (summary Summary, err error) {
	start := time.Now()
	cfg := opts.Config

	parent := log.Logger
	if opts.Logger != nil {
		parent = *opts.Logger
	}
	summary.RunID = uuid.NewString()
	logger := parent.With().Str("run_id", summary.RunID).Logger()

	if cfg.Output.MetricsFile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(cfg.Output.MetricsFile); werr != nil {
				logger.Warn().Err(werr).Str("path", cfg.Output.MetricsFile).Msg("Failed to write metrics textfile")
			}
		}()
	}

	rules, err := status.ParseIgnoreRules(cfg.Ignore)
	if err != nil {
		return summary, fmt.Errorf("parse ignore list: %w", err)
	}

	clientCfg := client.DefaultConfig(opts.Token)
	clientCfg.UserAgent = cfg.API.UserAgent
	clientCfg.RequestsPerSecond = cfg.API.RequestsPerSecond
	clientCfg.Transport = opts.Transport

	apiClient, err := client.New(clientCfg)
	if err != nil {
		return summary, fmt.Errorf("create api client: %w", err)
	}
	defer apiClient.Close()

	logger.Info().
		Str("statuses_url", cfg.API.StatusesURL).
		Int("ignore_rules", len(rules)).
		Int("routes", len(cfg.Routes)).
		Msg("Starting run")

	statuses, err := pagination.NewTraverser[status.Status](apiClient, EndpointStatuses).
		WithLogger(logger).
		Traverse(ctx, cfg.API.StatusesURL)
	if err != nil {
		return summary, fmt.Errorf("list statuses: %w", err)
	}
	summary.Statuses = len(statuses)

	kept := status.NewFilter(rules).WithLogger(logger).Apply(statuses)
	summary.Kept = len(kept)

	fetcher, err := pagination.NewBatchFetcher(apiClient, cfg.API.PolylineURL, pagination.Config{
		ChunkSize: cfg.API.ChunkSize,
		Endpoint:  EndpointPolyline,
	})
	if err != nil {
		return summary, fmt.Errorf("create batch fetcher: %w", err)
	}

	geometry, err := fetcher.WithLogger(logger).FetchGeometry(ctx, status.IDs(kept))
	if err != nil {
		return summary, fmt.Errorf("fetch polylines: %w", err)
	}
	summary.Chunks = len(geometry)

	tracks, err := track.NewReader(logger).ReadAll(cfg.Routes)
	if err != nil {
		return summary, fmt.Errorf("read routes: %w", err)
	}
	summary.Tracks = len(tracks)

	merged := make([]json.RawMessage, 0, len(geometry)+len(tracks))
	merged = append(merged, geometry...)
	merged = append(merged, tracks...)

	result, err := output.NewWriter(output.Config{
		JSONPath:     cfg.Output.JSON,
		TemplatePath: cfg.Output.Template,
		Dir:          cfg.Output.Dir,
		Placeholder:  cfg.Output.Placeholder,
	}, logger).Write(merged)
	if err != nil {
		return summary, fmt.Errorf("write output: %w", err)
	}
	summary.Output = result

	summary.RateLimit = apiClient.RateLimitState()
	summary.Duration = time.Since(start)

	logger.Info().
		Int("statuses", summary.Statuses).
		Int("kept", summary.Kept).
		Int("chunks", summary.Chunks).
		Int("tracks", summary.Tracks).
		Int("rate_limit_waits", summary.RateLimit.Waits).
		Dur("duration", summary.Duration).
		Msg("Run complete")

	return summary, nil
}

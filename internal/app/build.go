package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ent0n29/callkit/internal/callflow"
	"github.com/ent0n29/callkit/internal/calllog"
	"github.com/ent0n29/callkit/internal/config"
	"github.com/ent0n29/callkit/internal/httpapi"
	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/observability"
	"github.com/ent0n29/callkit/internal/platform"
	"github.com/ent0n29/callkit/internal/realtime"
	"github.com/ent0n29/callkit/internal/session"
)

type BuildResult struct {
	Config   config.Config
	Brands   []config.Brand
	Platform *platform.Client
	Store    calllog.Store
	Flow     *callflow.Flow
	API      *httpapi.Server
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	logging.Configure(cfg.LogLevel, cfg.LogFormat)

	brands, err := config.LoadBrands(cfg.BrandsFile, cfg.PlatformAPIKey)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := calllog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("call log store init failed: %w", err)
	}

	client := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformAPIKey,
		platform.WithHTTPClient(&http.Client{Timeout: cfg.PlatformHTTPTimeout}),
	)

	flow := callflow.New(brands, client, store,
		callflow.WithMetrics(metrics),
		callflow.WithPolling(cfg.AnalysisPollAttempts, cfg.AnalysisPollDelay),
		callflow.WithGatherLimit(cfg.AnalysisGatherConcurrency),
	)

	cleanup := func() error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("close call log store: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		Brands:   brands,
		Platform: client,
		Store:    store,
		Flow:     flow,
		API:      httpapi.New(flow, store, metrics),
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}

// NewRealtimeSDK returns an SDK bound to the configured audio websocket.
func (b *BuildResult) NewRealtimeSDK() *realtime.Client {
	return realtime.New(b.Config.PlatformRealtimeURL)
}

// NewSessionClient wraps sdk in a session client using the configured
// update setting.
func (b *BuildResult) NewSessionClient(sdk session.SDK, mic session.Microphone) *session.Client {
	return session.New(sdk, mic, session.WithUpdates(b.Config.SessionEnableUpdates))
}

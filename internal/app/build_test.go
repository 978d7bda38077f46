package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callkit/internal/calllog"
	"github.com/ent0n29/callkit/internal/config"
	"github.com/ent0n29/callkit/internal/session"
)

func writeBrands(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brands.yaml")
	doc := "brands:\n  - id: acme\n    agent_id: agent_acme\n    fields:\n      - {name: first_name, kind: text, required: true}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestBuildWiresComponents(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:          "test_build",
		LogLevel:                  "info",
		LogFormat:                 "text",
		PlatformBaseURL:           "http://127.0.0.1:1",
		PlatformAPIKey:            "key_global",
		PlatformRealtimeURL:       "ws://127.0.0.1:1/audio",
		PlatformHTTPTimeout:       time.Second,
		SessionEnableUpdates:      true,
		AnalysisPollAttempts:      1,
		AnalysisGatherConcurrency: 1,
		DatabaseURL:               "sqlite://" + filepath.Join(t.TempDir(), "calls.db"),
		BrandsFile:                writeBrands(t),
	}

	res, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, res.Cleanup()) })

	assert.IsType(t, &calllog.SQLiteStore{}, res.Store)
	require.Len(t, res.Brands, 1)
	assert.Equal(t, "key_global", res.Brands[0].APIKey)
	assert.NotNil(t, res.API.Router())

	client := res.NewSessionClient(res.NewRealtimeSDK(), session.GrantedMicrophone)
	defer client.Close()
	assert.Equal(t, session.StateNotStarted, client.State())
}

func TestBuildFailsWithoutBrands(t *testing.T) {
	_, err := Build(context.Background(), config.Config{BrandsFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

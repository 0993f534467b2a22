// A shared test server setup utility, which simplifies all API tests.

package testutil

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/api"
	"github.com/eHtmlu/peak-publisher/internal/config"
	"github.com/eHtmlu/peak-publisher/internal/core"
	"github.com/eHtmlu/peak-publisher/internal/metrics"
)

// SetupTestApp builds a core.App on an in-memory database with its
// storage and upload directories below a temporary directory.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	base := t.TempDir()

	cfg := config.Default()
	cfg.PublicURL = "https://updates.example.com"
	cfg.Database.Path = "file::memory:"
	cfg.Storage.Path = filepath.Join(base, "storage")
	cfg.Uploads.Path = filepath.Join(base, "uploads")

	return &core.App{
		Config:  cfg,
		DB:      SetupTestDB(t),
		Logger:  zap.NewNop(),
		Metrics: metrics.NewPrometheus(),
	}
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t)
	server := api.NewServer(app)
	t.Cleanup(server.Jobs().Wait)
	return server, app
}

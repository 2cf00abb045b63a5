package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ash-Blanc/migru/internal/db"
	"github.com/Ash-Blanc/migru/internal/events"
	"github.com/Ash-Blanc/migru/internal/insighttext"
	"github.com/Ash-Blanc/migru/internal/services"
	"github.com/gofiber/fiber/v2"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, time.March, 6, 12, 0, 0, 0, time.UTC)

type testServer struct {
	app       *fiber.App
	analytics *services.Analytics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "migru.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(database)
	})

	catalog, err := insighttext.NewEmbeddedCatalog(insighttext.LangEN)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return testNow }
	repos := db.NewRepositories(database)

	cfg := services.DefaultAnalyticsConfig()
	cfg.EvaluationTimeout = 2 * time.Second

	analytics := services.NewAnalytics(cfg, services.Dependencies{
		Log:          repos.Events,
		Buckets:      repos.Buckets,
		Correlations: repos.Correlations,
		Triggers:     repos.Triggers,
		Ledger:       repos.Ledger,
		Renderer:     insighttext.NewRenderer(catalog),
		Publisher:    events.NewLogPublisher(logger),
		Logger:       logger,
		Now:          now,
	})
	t.Cleanup(analytics.Close)

	handler, err := NewHandler(analytics, catalog, testSecretKey, HandlerOptions{Logger: logger, Now: now})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	app := fiber.New()
	RegisterRoutes(app, handler)
	return &testServer{app: app, analytics: analytics}
}

func mustIssueToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := IssueToken([]byte(testSecretKey), userID, time.Hour, testNow)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (server *testServer) do(t *testing.T, method string, path string, token string, body string, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}

	response, err := server.app.Test(request, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() {
		response.Body.Close()
	})
	return response
}

func decodeJSON(t *testing.T, response *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, response *http.Response, want int) {
	t.Helper()
	if response.StatusCode != want {
		body, _ := io.ReadAll(response.Body)
		t.Fatalf("expected status %d, got %d: %s", want, response.StatusCode, string(body))
	}
}

package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apierrors "github.com/vexlee/SnapCalAI-sub000/internal/api/errors"
	"github.com/vexlee/SnapCalAI-sub000/internal/api/handlers"
	"github.com/vexlee/SnapCalAI-sub000/internal/api/middleware"
	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/config"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/localstore"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

func newTestServer(t *testing.T, auth func(http.Handler) http.Handler) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	kv, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"), 0)
	if err != nil {
		t.Fatalf("localstore.Open() ошибка: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	c, err := cache.New(100)
	if err != nil {
		t.Fatalf("cache.New() ошибка: %v", err)
	}

	local := store.NewLocalRecordStore(kv)
	ids := identity.FromContext{}
	ttl := service.DefaultTTLs()
	svc := handlers.Services{
		Meals:      service.NewMealService(local, c, ids, service.MealServiceConfig{TTL: ttl}, logger),
		Aggregates: service.NewAggregateService(local, c, ids, ttl, logger),
		Profile:    service.NewProfileService(local, c, ids, ttl, logger),
		Archive:    service.NewArchiveService(local, c, ids, 30, time.UTC, logger),
		Migration:  service.NewMigrationService(local, nil, c, ids, 5, "device", "", logger),
	}
	h := handlers.NewAPIHandler(handlers.NewHealthHandler("local", kv), svc, logger)

	cfg := &config.Config{Port: 0, ShutdownTimeout: time.Second}
	return New(cfg, logger, h, auth, middleware.RequestLogger(logger), middleware.MetricsMiddleware())
}

func TestServer_AuthAppliesOnlyToAPI(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			apierrors.Unauthorized(w, "нет токена")
		})
	}
	srv := newTestServer(t, deny)

	tests := []struct {
		path string
		want int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/meals", http.StatusUnauthorized},
		{"/api/v1/settings/goal", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s: статус %d, ожидался %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestServer_LocalMode(t *testing.T) {
	srv := newTestServer(t, middleware.StaticSubject("device"))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/meals", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/v1/meals: статус %d, тело: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("неизвестный маршрут: статус %d, ожидался 404", rec.Code)
	}
}

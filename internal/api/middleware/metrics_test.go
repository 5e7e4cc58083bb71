package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = routePattern(req)
		})
	})
	r.Get("/api/v1/meals/{id}/image", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/meals/abc-123/image", nil))
	if got != "/api/v1/meals/{id}/image" {
		t.Errorf("routePattern() = %q, ожидался шаблон маршрута", got)
	}

	if p := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); p != unmatchedPath {
		t.Errorf("без chi-контекста routePattern() = %q, ожидалось %q", p, unmatchedPath)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("ok"))
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/meals", nil))

		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("статус %d: ожидался %s, лог: %s", tt.status, tt.level, out)
		}
		if !strings.Contains(out, "bytes=2") {
			t.Errorf("статус %d: не записан размер ответа, лог: %s", tt.status, out)
		}
	}
}

// TestRequestLogger_UserID — user_id, установленный вложенной
// аутентификацией, попадает в запись лога запроса.
func TestRequestLogger_UserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(StaticSubject("local-user"))
		r.Get("/api/v1/meals", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/meals", nil))
	if out := buf.String(); !strings.Contains(out, "user_id=local-user") {
		t.Errorf("в логе нет user_id: %s", out)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if out := buf.String(); strings.Contains(out, "user_id=") {
		t.Errorf("запрос без аутентификации не должен содержать user_id: %s", out)
	}
}

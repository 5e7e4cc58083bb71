package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vexlee/SnapCalAI-sub000/internal/api/middleware"
	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/database"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/localstore"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

const testUser = "device"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	kv     *localstore.Store
	local  *store.LocalRecordStore
	svc    Services
	router chi.Router
}

// newTestEnv собирает API локального режима поверх хранилища во временном каталоге.
// remote != nil включает миграцию в указанный бэкенд.
func newTestEnv(t *testing.T, remote store.RecordStore, schema SchemaChecker) *testEnv {
	t.Helper()
	kv, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"), 0)
	if err != nil {
		t.Fatalf("localstore.Open() ошибка: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	c, err := cache.New(1000)
	if err != nil {
		t.Fatalf("cache.New() ошибка: %v", err)
	}

	local := store.NewLocalRecordStore(kv)
	ids := identity.FromContext{}
	logger := testLogger()
	ttl := service.DefaultTTLs()

	svc := Services{
		Meals:      service.NewMealService(local, c, ids, service.MealServiceConfig{TTL: ttl, Location: time.UTC}, logger),
		Aggregates: service.NewAggregateService(local, c, ids, ttl, logger),
		Profile:    service.NewProfileService(local, c, ids, ttl, logger),
		Archive:    service.NewArchiveService(local, c, ids, 30, time.UTC, logger),
		Migration:  service.NewMigrationService(local, remote, c, ids, 5, testUser, testUser, logger),
		Schema:     schema,
	}

	h := NewAPIHandler(NewHealthHandler("local", kv), svc, logger)
	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.StaticSubject(testUser))
		h.RegisterAPI(r)
	})

	return &testEnv{kv: kv, local: local, svc: svc, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("декодирование ответа: %v, тело: %s", err, rec.Body.String())
	}
	return v
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func TestMeals_SaveListCountDelete(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/meals",
		`{"foodName":"Омлет","calories":320,"protein":18,"timestamp":"2024-05-10T08:30:00Z","image":"data:image/png;base64,AAAA"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /meals: статус %d, тело: %s", rec.Code, rec.Body.String())
	}
	saved := decode[model.Meal](t, rec)
	if saved.ID == "" || saved.Date != "2024-05-10" || saved.UserID != testUser {
		t.Fatalf("неожиданная запись: %+v", saved)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/meals?date=2024-05-10", "")
	if meals := decode[[]model.Meal](t, rec); len(meals) != 1 || meals[0].FoodName != "Омлет" {
		t.Errorf("GET /meals?date: %+v", meals)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/meals?lite=true", "")
	if meals := decode[[]model.Meal](t, rec); len(meals) != 1 || meals[0].Image != "" {
		t.Errorf("облегчённый список должен быть без изображений: %+v", meals)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/meals/count?date=2024-05-10", "")
	if c := decode[countResponse](t, rec); c.Count != 1 {
		t.Errorf("count = %d, ожидалось 1", c.Count)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/meals/"+saved.ID+"/image", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET image: статус %d", rec.Code)
	}

	if rec = env.do(t, http.MethodDelete, "/api/v1/meals/"+saved.ID+"/image", ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE image: статус %d", rec.Code)
	}
	if rec = env.do(t, http.MethodGet, "/api/v1/meals/"+saved.ID+"/image", ""); rec.Code != http.StatusNotFound {
		t.Errorf("изображение удалено, ожидался 404, получен %d", rec.Code)
	}

	if rec = env.do(t, http.MethodDelete, "/api/v1/meals/"+saved.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE /meals/{id}: статус %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/meals", "")
	if meals := decode[[]model.Meal](t, rec); len(meals) != 0 {
		t.Errorf("после удаления осталось %d записей", len(meals))
	}
}

func TestMeals_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"некорректный JSON", http.MethodPut, "/api/v1/meals", `{"foodName":`},
		{"отрицательные калории", http.MethodPut, "/api/v1/meals", `{"foodName":"x","calories":-1,"timestamp":"2024-05-10T08:30:00Z"}`},
		{"дата не в формате", http.MethodGet, "/api/v1/meals/count?date=10.05.2024", ""},
		{"перевёрнутый диапазон", http.MethodGet, "/api/v1/aggregates?start=2024-05-10&end=2024-05-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("статус %d, ожидался 400, тело: %s", rec.Code, rec.Body.String())
			}
			if body := decode[errorResponse](t, rec); body.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %q", body.Error.Code)
			}
		})
	}
}

func TestMeals_LocalQuotaExhausted(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	img := strings.Repeat("A", 6*1024*1024)
	rec := env.do(t, http.MethodPut, "/api/v1/meals",
		`{"foodName":"Пицца","calories":800,"timestamp":"2024-05-10T12:00:00Z","image":"`+img+`"}`)

	if rec.Code != http.StatusInsufficientStorage {
		t.Fatalf("статус %d, ожидался 507", rec.Code)
	}
	body := decode[errorResponse](t, rec)
	if body.Error.Code != "LOCAL_STORAGE_EXHAUSTED" || body.Error.Retryable {
		t.Errorf("неожиданная ошибка: %+v", body.Error)
	}
}

func TestAggregates(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, b := range []string{
		`{"foodName":"a","calories":300,"timestamp":"2024-05-10T08:00:00Z"}`,
		`{"foodName":"b","calories":500,"timestamp":"2024-05-10T13:00:00Z"}`,
		`{"foodName":"c","calories":700,"timestamp":"2024-05-11T19:00:00Z"}`,
	} {
		if rec := env.do(t, http.MethodPut, "/api/v1/meals", b); rec.Code != http.StatusOK {
			t.Fatalf("PUT /meals: статус %d", rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/aggregates", "")
	aggs := decode[[]model.DailyAggregate](t, rec)
	if len(aggs) != 2 {
		t.Fatalf("получено %d агрегатов, ожидалось 2", len(aggs))
	}
	if aggs[0].Date != "2024-05-11" || aggs[1].TotalCalories != 800 || aggs[1].MealCount != 2 {
		t.Errorf("неожиданные агрегаты: %+v", aggs)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/aggregates?start=2024-05-10&end=2024-05-11", "")
	if aggs := decode[[]model.DailyAggregate](t, rec); len(aggs) != 1 || aggs[0].Date != "2024-05-10" {
		t.Errorf("диапазон [10, 11): %+v", aggs)
	}
}

func TestSettingsAndProfile(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if rec := env.do(t, http.MethodGet, "/api/v1/settings", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /settings без данных: статус %d, ожидался 404", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/settings/goal", "")
	if g := decode[goalResponse](t, rec); g.DailyCalorieGoal != service.DefaultDailyCalorieGoal {
		t.Errorf("цель по умолчанию = %v", g.DailyCalorieGoal)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/settings", `{"dailyCalorieGoal":1750}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT /settings: статус %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/settings/goal", "")
	if g := decode[goalResponse](t, rec); g.DailyCalorieGoal != 1750 {
		t.Errorf("цель после сохранения = %v, ожидалось 1750", g.DailyCalorieGoal)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/profile", `{"name":"Аня","age":200}`); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT /profile с age=200: статус %d, ожидался 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/v1/profile",
		`{"name":"Аня","age":29,"gender":"female","activityLevel":"moderate","goal":"maintain"}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT /profile: статус %d, тело: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/v1/profile", "")
	if p := decode[model.Profile](t, rec); p.Name != "Аня" || p.UserID != testUser {
		t.Errorf("профиль: %+v", p)
	}
}

func TestStartSession_ArchivesOncePerDay(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	old := &model.Meal{
		ID: "old", UserID: testUser, FoodName: "суп", Calories: 250,
		Timestamp: time.Now().UTC().AddDate(0, 0, -60),
	}
	old.StampDate(time.UTC)
	if err := env.local.SaveMeal(ctx, old); err != nil {
		t.Fatalf("SaveMeal() ошибка: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/session", "")
	first := decode[sessionResponse](t, rec)
	if !first.Archived || first.Result == nil || len(first.Result.ArchivedDates) != 1 {
		t.Fatalf("первая сессия: %+v", first)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/session", "")
	if second := decode[sessionResponse](t, rec); second.Archived {
		t.Errorf("повторная сессия в тот же день не должна архивировать: %+v", second)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/aggregates", "")
	aggs := decode[[]model.DailyAggregate](t, rec)
	if len(aggs) != 1 || aggs[0].TotalCalories != 250 || !aggs[0].Archived {
		t.Errorf("ожидался архивный агрегат 250 ккал: %+v", aggs)
	}
}

func TestMigration_LocalModeUnavailable(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/migration", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("статус %d, ожидался 409", rec.Code)
	}
	if body := decode[errorResponse](t, rec); body.Error.Code != "MIGRATION_UNAVAILABLE" {
		t.Errorf("code = %q", body.Error.Code)
	}
}

// deniedStore — удалённый бэкенд, отклоняющий запись.
type deniedStore struct {
	store.RecordStore
}

func (deniedStore) SaveMeals(context.Context, []*model.Meal) error {
	return &store.Error{Kind: store.KindRemoteAccessDenied, Op: "save meals", Message: "row-level security"}
}

func TestMigration_FailureKeepsLocalData(t *testing.T) {
	remote := newTestEnv(t, nil, nil).local
	env := newTestEnv(t, deniedStore{RecordStore: remote}, nil)

	if rec := env.do(t, http.MethodPut, "/api/v1/meals",
		`{"foodName":"a","calories":100,"timestamp":"2024-05-10T08:00:00Z"}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT /meals: статус %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/migration", "")
	if st := decode[migrationResponse](t, rec); !st.HasLocalData || st.Status.State != service.MigrationIdle {
		t.Errorf("до миграции: %+v", st)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/migration", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("статус %d, ожидался 403, тело: %s", rec.Code, rec.Body.String())
	}
	failure := decode[migrationFailure](t, rec)
	if failure.Error.Code != "REMOTE_ACCESS_DENIED" || failure.Status.State != service.MigrationFailed {
		t.Errorf("неожиданный ответ: %+v", failure)
	}
	if failure.Status.FailedAt != 1 {
		t.Errorf("failedAt = %d, ожидалось 1", failure.Status.FailedAt)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/migration", "")
	if st := decode[migrationResponse](t, rec); !st.HasLocalData {
		t.Error("локальные данные должны сохраниться после сбоя")
	}
}

type fakeSchema struct {
	status *database.SchemaStatus
}

func (f fakeSchema) CheckSchema(context.Context) (*database.SchemaStatus, error) {
	return f.status, nil
}

func TestGetSchema(t *testing.T) {
	rec := newTestEnv(t, nil, nil).do(t, http.MethodGet, "/api/v1/schema/health", "")
	if s := decode[schemaResponse](t, rec); s.Backend != "local" || !s.Ready {
		t.Errorf("локальный режим: %+v", s)
	}

	env := newTestEnv(t, nil, fakeSchema{status: &database.SchemaStatus{Missing: []string{"user_profiles"}}})
	rec = env.do(t, http.MethodGet, "/api/v1/schema/health", "")
	s := decode[schemaResponse](t, rec)
	if s.Backend != "remote" || s.Ready || len(s.Missing) != 1 {
		t.Errorf("удалённый режим без таблицы: %+v", s)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if rec := env.do(t, http.MethodGet, "/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("/health/live: статус %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health/ready: статус %d", rec.Code)
	}
	ready := decode[healthReadyResponse](t, rec)
	if ready.Status != "ok" || ready.Checks["local"].Status != "ok" {
		t.Errorf("readiness: %+v", ready)
	}
}

func TestHealthReady_NoChecker(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler("remote", nil).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("без проверки ожидался 503, получен %d", rec.Code)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
		{nil, "ok"},
	}
	for _, tt := range tests {
		if got := overallStatus(tt.in...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}

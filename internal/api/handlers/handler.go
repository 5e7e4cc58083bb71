// handler.go — основной обработчик API SnapCal Store.
// Объединяет health и бизнес-обработчики, регистрирует маршруты /api/v1.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/vexlee/SnapCalAI-sub000/internal/api/errors"
	"github.com/vexlee/SnapCalAI-sub000/internal/database"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
)

// SchemaChecker — проверка схемы удалённой базы.
type SchemaChecker interface {
	CheckSchema(ctx context.Context) (*database.SchemaStatus, error)
}

// Services — сервисный слой, которому делегируют обработчики.
type Services struct {
	Meals      *service.MealService
	Aggregates *service.AggregateService
	Profile    *service.ProfileService
	Archive    *service.ArchiveService
	Migration  *service.MigrationService
	// Schema — nil в локальном режиме
	Schema SchemaChecker
}

// APIHandler — основной обработчик API SnapCal Store.
type APIHandler struct {
	health *HealthHandler
	svc    Services
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		svc:    svc,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// RegisterPublic регистрирует endpoints без аутентификации.
func (h *APIHandler) RegisterPublic(r chi.Router) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)
}

// RegisterAPI регистрирует бизнес-маршруты. Ожидается, что идентификатор
// пользователя уже помещён в контекст middleware аутентификации.
func (h *APIHandler) RegisterAPI(r chi.Router) {
	r.Route("/meals", func(r chi.Router) {
		r.Get("/", h.ListMeals)
		r.Put("/", h.SaveMeal)
		r.Get("/count", h.CountMeals)
		r.Delete("/{id}", h.DeleteMeal)
		r.Get("/{id}/image", h.GetMealImage)
		r.Delete("/{id}/image", h.ClearMealImage)
	})
	r.Get("/aggregates", h.ListAggregates)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.SaveSettings)
	r.Get("/settings/goal", h.GetDailyGoal)
	r.Get("/profile", h.GetProfile)
	r.Put("/profile", h.SaveProfile)

	r.Post("/session", h.StartSession)

	r.Get("/migration", h.GetMigration)
	r.Post("/migration", h.RunMigration)

	r.Get("/schema/health", h.GetSchema)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encodeJSON(w, data)
}

// decodeJSON читает тело запроса. При ошибке записывает 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return false
	}
	return true
}

// fail логирует ошибку сервиса и записывает ответ по ней.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, _ := apierrors.Describe(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "Ошибка обработки запроса",
		slog.String("op", op),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	apierrors.FromError(w, err)
}

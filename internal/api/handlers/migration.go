// migration.go — обработчики переноса локальных данных в удалённый бэкенд.
// GET /migration — есть ли что переносить и текущее состояние.
// POST /migration — запуск переноса (синхронно, до завершения или сбоя).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/vexlee/SnapCalAI-sub000/internal/api/errors"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
)

// migrationResponse — состояние миграции.
type migrationResponse struct {
	HasLocalData bool                    `json:"hasLocalData"`
	Status       service.MigrationStatus `json:"status"`
}

// migrationFailure — ответ на сбой переноса: ошибка и состояние,
// по которому видно, на какой записи остановились.
type migrationFailure struct {
	Error  migrationErrorDetail    `json:"error"`
	Status service.MigrationStatus `json:"status"`
}

type migrationErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// GetMigration — GET /migration.
func (h *APIHandler) GetMigration(w http.ResponseWriter, r *http.Request) {
	has, err := h.svc.Migration.HasLocalData(r.Context())
	if err != nil {
		h.fail(w, r, "check local data", err)
		return
	}
	writeJSON(w, http.StatusOK, migrationResponse{HasLocalData: has, Status: h.svc.Migration.Status()})
}

// RunMigration — POST /migration.
func (h *APIHandler) RunMigration(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Migration.Migrate(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, migrationResponse{Status: status})
		return
	}

	var me *service.MigrationError
	if !errors.As(err, &me) {
		h.fail(w, r, "migrate", err)
		return
	}

	httpStatus, code, retryable := apierrors.Describe(err)
	h.logger.Error("Миграция не завершена",
		slog.String("stage", string(me.Stage)),
		slog.Int("failed_at", me.RecordIndex),
		slog.String("error", err.Error()),
	)
	writeJSON(w, httpStatus, migrationFailure{
		Error:  migrationErrorDetail{Code: code, Message: err.Error(), Retryable: retryable},
		Status: status,
	})
}

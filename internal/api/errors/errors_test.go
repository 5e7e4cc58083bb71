package errors //nolint:revive // конфликт имени со stdlib

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{
			"локальная квота",
			&store.Error{Kind: store.KindLocalStorageExhausted, Op: "save meals", Message: "нет места"},
			http.StatusInsufficientStorage, "LOCAL_STORAGE_EXHAUSTED", false,
		},
		{
			"квота удалённого хранилища",
			fmt.Errorf("обёртка: %w", &store.Error{Kind: store.KindRemoteQuotaExhausted, Op: "save meals", Message: "quota"}),
			http.StatusInsufficientStorage, "REMOTE_QUOTA_EXHAUSTED", true,
		},
		{
			"нет схемы",
			&store.Error{Kind: store.KindRemoteSchemaMissing, Op: "list meals", Message: "нет таблиц"},
			http.StatusServiceUnavailable, "REMOTE_SCHEMA_MISSING", false,
		},
		{
			"отказ в доступе",
			&store.Error{Kind: store.KindRemoteAccessDenied, Op: "list meals", Message: "rls"},
			http.StatusForbidden, "REMOTE_ACCESS_DENIED", false,
		},
		{
			"прочая ошибка удалённого хранилища",
			&store.Error{Kind: store.KindRemoteUnclassified, Op: "list meals", Message: "timeout"},
			http.StatusBadGateway, "REMOTE_FAILURE", true,
		},
		{
			"сбой локального хранилища",
			&store.Error{Kind: store.KindLocalFailure, Op: "local.read", Message: "повреждено значение"},
			http.StatusInternalServerError, "LOCAL_FAILURE", false,
		},
		{"чужая запись", fmt.Errorf("meals.save: %w", store.ErrForeignOwner), http.StatusForbidden, CodeForbidden, false},
		{"миграция чужого хранилища", service.ErrMigrationForbidden, http.StatusForbidden, CodeForbidden, false},
		{"валидация", fmt.Errorf("%w: пустая дата", service.ErrValidation), http.StatusBadRequest, CodeValidationError, false},
		{"нет пользователя", identity.ErrNoIdentity, http.StatusUnauthorized, CodeUnauthorized, false},
		{"миграция недоступна", service.ErrMigrationConfig, http.StatusConflict, CodeMigrationConfig, false},
		{"миграция уже идёт", service.ErrMigrationRunning, http.StatusConflict, CodeMigrationRunning, true},
		{"неизвестная ошибка", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			if rec.Code != tt.status {
				t.Errorf("статус %d, ожидался %d", rec.Code, tt.status)
			}
			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("декодирование тела: %v", err)
			}
			if body.Error.Code != tt.code {
				t.Errorf("code = %q, ожидался %q", body.Error.Code, tt.code)
			}
			if body.Error.Retryable != tt.retryable {
				t.Errorf("retryable = %v, ожидалось %v", body.Error.Retryable, tt.retryable)
			}
			if body.Error.Message == "" {
				t.Error("пустое сообщение об ошибке")
			}
		})
	}
}

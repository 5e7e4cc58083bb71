// Пакет errors — конструкторы стандартных ошибок API SnapCal.
// Единый формат: {"error": {"code": "...", "message": "...", "retryable": bool}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или FromError.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// Коды ошибок API.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeMigrationConfig  = "MIGRATION_UNAVAILABLE"
	CodeMigrationRunning = "MIGRATION_IN_PROGRESS"
	CodeInternalError    = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	})
}

// FromError записывает ответ по ошибке сервисного слоя.
func FromError(w http.ResponseWriter, err error) {
	status, code, retryable := Describe(err)
	msg := err.Error()
	var se *store.Error
	if stderrors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	WriteError(w, status, code, msg, retryable)
}

// Describe возвращает HTTP-статус, код и признак повторяемости для ошибки.
//
// Соответствие статусов:
//   - LOCAL_STORAGE_EXHAUSTED, REMOTE_QUOTA_EXHAUSTED → 507
//   - REMOTE_SCHEMA_MISSING → 503
//   - REMOTE_ACCESS_DENIED → 403
//   - REMOTE_FAILURE → 502
//   - LOCAL_FAILURE → 500
//   - ErrValidation → 400, ErrNoIdentity → 401
//   - ErrForeignOwner, ErrMigrationForbidden → 403
//   - ErrMigrationConfig, ErrMigrationRunning → 409
func Describe(err error) (status int, code string, retryable bool) {
	var se *store.Error
	if stderrors.As(err, &se) {
		return kindStatus(se.Kind), se.Kind.String(), se.Retryable()
	}

	switch {
	case stderrors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, CodeValidationError, false
	case stderrors.Is(err, identity.ErrNoIdentity):
		return http.StatusUnauthorized, CodeUnauthorized, false
	case stderrors.Is(err, store.ErrForeignOwner), stderrors.Is(err, service.ErrMigrationForbidden):
		return http.StatusForbidden, CodeForbidden, false
	case stderrors.Is(err, service.ErrMigrationConfig):
		return http.StatusConflict, CodeMigrationConfig, false
	case stderrors.Is(err, service.ErrMigrationRunning):
		return http.StatusConflict, CodeMigrationRunning, true
	default:
		return http.StatusInternalServerError, CodeInternalError, false
	}
}

// kindStatus возвращает HTTP-статус для вида ошибки хранилища.
func kindStatus(k store.Kind) int {
	switch k {
	case store.KindLocalStorageExhausted, store.KindRemoteQuotaExhausted:
		return http.StatusInsufficientStorage
	case store.KindRemoteSchemaMissing:
		return http.StatusServiceUnavailable
	case store.KindRemoteAccessDenied:
		return http.StatusForbidden
	case store.KindLocalFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message, false)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message, false)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message, false)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message, false)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message, false)
}

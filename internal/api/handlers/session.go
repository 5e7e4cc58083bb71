// session.go — хук начала сессии пользователя.
// Запускает архивацию старых записей не чаще раза в сутки.
package handlers

import (
	"net/http"

	"github.com/vexlee/SnapCalAI-sub000/internal/service"
)

// sessionResponse — ответ POST /session.
type sessionResponse struct {
	// Archived — выполнялся ли проход архивации в этой сессии
	Archived bool                   `json:"archived"`
	Result   *service.ArchiveResult `json:"result,omitempty"`
}

// StartSession — POST /session.
// Ошибки отдельных дат не прерывают сессию: они видны в result.errors.
func (h *APIHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Archive.OnSessionStart(r.Context())
	if err != nil {
		h.fail(w, r, "start session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Archived: result != nil, Result: result})
}

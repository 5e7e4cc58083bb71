package handlers

import (
	"net/http"

	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// schemaResponse — ответ GET /schema/health.
type schemaResponse struct {
	Backend string   `json:"backend"`
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

// GetSchema — GET /schema/health. Проверяет, что в удалённой базе созданы все
// таблицы. В локальном режиме схема всегда готова.
func (h *APIHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	if h.svc.Schema == nil {
		writeJSON(w, http.StatusOK, schemaResponse{Backend: "local", Ready: true, Missing: []string{}})
		return
	}
	st, err := h.svc.Schema.CheckSchema(r.Context())
	if err != nil {
		h.fail(w, r, "check schema", store.Classify("check schema", err))
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{Backend: "remote", Ready: st.Ready, Missing: st.Missing})
}

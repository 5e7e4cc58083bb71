// profile.go — обработчики настроек и профиля пользователя.
package handlers

import (
	"net/http"

	apierrors "github.com/vexlee/SnapCalAI-sub000/internal/api/errors"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// GetSettings — GET /settings.
func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Profile.GetSettings(r.Context())
	if err != nil {
		h.fail(w, r, "get settings", err)
		return
	}
	if st == nil {
		apierrors.NotFound(w, "Настройки не заданы")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SaveSettings — PUT /settings.
func (h *APIHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var st model.Settings
	if !decodeJSON(w, r, &st) {
		return
	}
	saved, err := h.svc.Profile.SaveSettings(r.Context(), &st)
	if err != nil {
		h.fail(w, r, "save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// goalResponse — ответ GET /settings/goal.
type goalResponse struct {
	DailyCalorieGoal float64 `json:"dailyCalorieGoal"`
}

// GetDailyGoal — GET /settings/goal. Без настроек — цель по умолчанию.
func (h *APIHandler) GetDailyGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := h.svc.Profile.DailyGoal(r.Context())
	if err != nil {
		h.fail(w, r, "get daily goal", err)
		return
	}
	writeJSON(w, http.StatusOK, goalResponse{DailyCalorieGoal: goal})
}

// GetProfile — GET /profile.
func (h *APIHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile.GetProfile(r.Context())
	if err != nil {
		h.fail(w, r, "get profile", err)
		return
	}
	if p == nil {
		apierrors.NotFound(w, "Профиль не заполнен")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SaveProfile — PUT /profile.
func (h *APIHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var p model.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	saved, err := h.svc.Profile.SaveProfile(r.Context(), &p)
	if err != nil {
		h.fail(w, r, "save profile", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

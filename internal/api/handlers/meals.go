// meals.go — обработчики /api/v1/meals.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/vexlee/SnapCalAI-sub000/internal/api/errors"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// ListMeals — GET /meals.
// ?date=YYYY-MM-DD — записи за дату; ?lite=true — список без изображений.
func (h *APIHandler) ListMeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		meals []*model.Meal
		err   error
	)
	switch date := q.Get("date"); {
	case date != "":
		meals, err = h.svc.Meals.ListForDate(r.Context(), date)
	case isTrue(q.Get("lite")):
		meals, err = h.svc.Meals.ListLite(r.Context())
	default:
		meals, err = h.svc.Meals.List(r.Context())
	}
	if err != nil {
		h.fail(w, r, "list meals", err)
		return
	}
	if meals == nil {
		meals = []*model.Meal{}
	}
	writeJSON(w, http.StatusOK, meals)
}

// countResponse — ответ GET /meals/count.
type countResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// CountMeals — GET /meals/count?date=YYYY-MM-DD.
func (h *APIHandler) CountMeals(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	n, err := h.svc.Meals.CountForDate(r.Context(), date)
	if err != nil {
		h.fail(w, r, "count meals", err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Date: date, Count: n})
}

// SaveMeal — PUT /meals. Создаёт запись или заменяет существующую по id.
func (h *APIHandler) SaveMeal(w http.ResponseWriter, r *http.Request) {
	var m model.Meal
	if !decodeJSON(w, r, &m) {
		return
	}
	saved, err := h.svc.Meals.Save(r.Context(), &m)
	if err != nil {
		h.fail(w, r, "save meal", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteMeal — DELETE /meals/{id}.
func (h *APIHandler) DeleteMeal(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Meals.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "delete meal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// imageResponse — ответ GET /meals/{id}/image.
type imageResponse struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

// GetMealImage — GET /meals/{id}/image.
func (h *APIHandler) GetMealImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := h.svc.Meals.GetImage(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get meal image", err)
		return
	}
	if img == "" {
		apierrors.NotFound(w, "У записи нет изображения")
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{ID: id, Image: img})
}

// ClearMealImage — DELETE /meals/{id}/image. Запись остаётся.
func (h *APIHandler) ClearMealImage(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Meals.ClearImage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "clear meal image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isTrue(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

package handlers

import (
	"net/http"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// ListAggregates — GET /aggregates.
// Без параметров — все дни; ?start=&end= — полуинтервал [start, end).
func (h *APIHandler) ListAggregates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")

	var (
		aggs []*model.DailyAggregate
		err  error
	)
	if start == "" && end == "" {
		aggs, err = h.svc.Aggregates.DailyAggregates(r.Context())
	} else {
		aggs, err = h.svc.Aggregates.DailyAggregatesForRange(r.Context(), start, end)
	}
	if err != nil {
		h.fail(w, r, "list aggregates", err)
		return
	}
	if aggs == nil {
		aggs = []*model.DailyAggregate{}
	}
	writeJSON(w, http.StatusOK, aggs)
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

func (a *API) handleGetStock(w http.ResponseWriter, r *http.Request) {
	levels, err := a.service.GetStock(r.Context(), chi.URLParam(r, "locationID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (a *API) handleReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := a.service.ReceiveStock(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": entry})
}

func (a *API) handleIssueStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := a.service.IssueStock(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": entry})
}

func (a *API) handleShiftStart(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftStartRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shift, err := a.service.StartShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.ShiftResponse{Shift: *shift})
}

func (a *API) handleShiftEnd(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftEndRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shift, err := a.service.EndShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ShiftResponse{Shift: *shift})
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.ActiveShift(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ShiftResponse{Shift: *shift})
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req domain.ReconciliationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := a.service.Reconcile(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reconciliation": record})
}

func (a *API) handleGetReconciliation(w http.ResponseWriter, r *http.Request) {
	record, err := a.service.GetReconciliation(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reconciliation": record})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("pod_id"), q.Get("date"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	orders, err := a.service.ListOrders(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	result, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeCheckout(w, result)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func parseOrderFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		LocationID: strings.TrimSpace(q.Get("pod_id")),
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Status:     domain.OrderStatus(strings.TrimSpace(q.Get("status"))),
		Limit:      parsePositiveLimit(q.Get("limit"), 100, 500),
	}
	var err error
	if from := strings.TrimSpace(q.Get("from")); from != "" {
		if filter.From, err = time.Parse(time.RFC3339, from); err != nil {
			return filter, fmt.Errorf("%w: from must be RFC3339", store.ErrValidation)
		}
	}
	if to := strings.TrimSpace(q.Get("to")); to != "" {
		if filter.To, err = time.Parse(time.RFC3339, to); err != nil {
			return filter, fmt.Errorf("%w: to must be RFC3339", store.ErrValidation)
		}
	}
	return filter, nil
}

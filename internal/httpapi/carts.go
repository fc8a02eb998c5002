package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

type paymentMethodRequest struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetCart(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearCart(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req domain.CartItem
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AddCartItem(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveCartItem(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "productID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSetCartPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SetCartPaymentMethod(r.Context(), chi.URLParam(r, "sessionID"), req.PaymentMethod)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCartCheckout(w http.ResponseWriter, r *http.Request) {
	var opts domain.CheckoutOptions
	if err := decodeOptionalJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if opts.IdempotencyKey == "" {
		opts.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	result, err := a.service.CheckoutSession(r.Context(), chi.URLParam(r, "sessionID"), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeCheckout(w, result)
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, dest any) error {
	err := decodeJSON(r, dest)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeCheckout(w http.ResponseWriter, result domain.CheckoutResponse) {
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

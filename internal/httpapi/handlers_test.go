package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/logging"
	"github.com/Heinvv10/gaztime-sub001/internal/service"
	"github.com/Heinvv10/gaztime-sub001/internal/store/memory"
)

// newTestAPI wires the real service, auth and memory store so handler tests
// cover the whole request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	logger := logging.Discard()
	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{Logger: logger})
	auth := NewAuthManager(context.Background(), testSecret, time.Hour, repo, logger)
	return New(svc, auth, "*", logger)
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()
	res := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}

func do(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

func openShift(t *testing.T, api *API, token string) {
	t.Helper()
	res := do(t, api, http.MethodPost, "/api/v1/shifts/start", token, domain.ShiftStartRequest{PodID: memory.DemoPodID})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	api.AddHealthCheck("store", func(context.Context) error { return nil })

	res := do(t, api, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestHandleHealthReportsFailingDependency(t *testing.T) {
	api := newTestAPI(t)
	api.AddHealthCheck("redis", func(context.Context) error { return io.ErrUnexpectedEOF })

	res := do(t, api, http.MethodGet, "/api/v1/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestHandleLoginSuccess(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, res.Code)

	payload := decodeBody[domain.LoginResponse](t, res)
	assert.Equal(t, domain.RoleAdmin, payload.Role)
	assert.NotEmpty(t, payload.ExpiresAt)
}

func TestCounterSaleThroughCartSession(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")

	res := do(t, api, http.MethodPost, "/api/v1/carts/till-1/items", operator, domain.CartItem{ProductID: "prod-lpg-9kg", Quantity: 1})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = do(t, api, http.MethodPut, "/api/v1/carts/till-1/payment-method", operator, map[string]string{"payment_method": "cash"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = do(t, api, http.MethodPost, "/api/v1/carts/till-1/checkout", operator, nil)
	require.Equal(t, http.StatusPreconditionFailed, res.Code, res.Body.String())

	openShift(t, api, operator)
	res = do(t, api, http.MethodPost, "/api/v1/carts/till-1/checkout", operator, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	result := decodeBody[domain.CheckoutResponse](t, res)
	assert.True(t, result.Order.TotalAmount.Equal(decimal.NewFromInt(350)))
	assert.Equal(t, domain.PaymentPaid, result.Order.PaymentStatus)

	res = do(t, api, http.MethodGet, "/api/v1/carts/till-1", operator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	view := decodeBody[map[string]any](t, res)
	assert.EqualValues(t, 0, view["item_count"])

	res = do(t, api, http.MethodGet, "/api/v1/inventory/stock/"+memory.DemoPodID, operator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	levels := decodeBody[domain.StockLevelResponse](t, res)
	for _, entry := range levels.Items {
		if entry.ProductID == "prod-lpg-9kg" {
			assert.Equal(t, 39, entry.Quantity)
		}
	}
}

func TestCreateOrderIdempotencyHeader(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")
	openShift(t, api, operator)

	body := domain.OrderCreateRequest{
		CheckoutOptions: domain.CheckoutOptions{PaymentMethod: domain.PaymentCash},
		Items:           []domain.CartItem{{ProductID: "prod-lpg-9kg", Quantity: 2}},
	}
	send := func() *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer "+operator)
		req.Header.Set("Idempotency-Key", "till-1-42")
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)
		return res
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusOK, second.Code)

	a := decodeBody[domain.CheckoutResponse](t, first)
	b := decodeBody[domain.CheckoutResponse](t, second)
	assert.True(t, b.Duplicate)
	assert.Equal(t, a.Order.ID, b.Order.ID)

	body.Items[0].Quantity = 3
	third := send()
	assert.Equal(t, http.StatusConflict, third.Code, third.Body.String())
}

func TestOrderErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")
	driver := login(t, api, "driver", "driver123")
	openShift(t, api, operator)

	res := do(t, api, http.MethodPost, "/api/v1/orders", operator, domain.OrderCreateRequest{
		CheckoutOptions: domain.CheckoutOptions{PaymentMethod: domain.PaymentCash},
		Items:           []domain.CartItem{{ProductID: "prod-lpg-48kg", Quantity: 41}},
	})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(t, api, http.MethodPost, "/api/v1/orders", operator, domain.OrderCreateRequest{
		CheckoutOptions: domain.CheckoutOptions{PaymentMethod: domain.PaymentCash},
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, api, http.MethodPost, "/api/v1/orders", operator, domain.OrderCreateRequest{
		CheckoutOptions: domain.CheckoutOptions{PaymentMethod: domain.PaymentCash},
		Items:           []domain.CartItem{{ProductID: "prod-lpg-9kg", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, res.Code)
	order := decodeBody[domain.CheckoutResponse](t, res).Order

	res = do(t, api, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", driver, domain.OrderStatusUpdateRequest{Status: domain.StatusConfirmed})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = do(t, api, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", operator, domain.OrderStatusUpdateRequest{Status: domain.StatusDelivered})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(t, api, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", operator, domain.OrderStatusUpdateRequest{Status: domain.StatusConfirmed})
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, api, http.MethodGet, "/api/v1/orders/ord-missing", operator, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = do(t, api, http.MethodGet, "/api/v1/orders?from=yesterday", operator, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestCustomerLookupByPhone(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")

	res := do(t, api, http.MethodGet, "/api/v1/customers/by-phone?phone=0825550001", operator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	found := decodeBody[domain.CustomerLookupResponse](t, res)
	assert.True(t, found.Found)
	assert.Equal(t, memory.DemoCustomerID, found.Customer.ID)

	res = do(t, api, http.MethodGet, "/api/v1/customers/by-phone?phone=0830000000", operator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	missing := decodeBody[domain.CustomerLookupResponse](t, res)
	assert.False(t, missing.Found)
	assert.Equal(t, "+27830000000", missing.Phone)

	res = do(t, api, http.MethodGet, "/api/v1/customers/by-phone?phone=abc", operator, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestShiftEndNeedsFullChecklist(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")

	res := do(t, api, http.MethodPost, "/api/v1/shifts/end", operator, domain.ShiftEndRequest{})
	assert.Equal(t, http.StatusNotFound, res.Code)

	openShift(t, api, operator)
	res = do(t, api, http.MethodPost, "/api/v1/shifts/start", operator, domain.ShiftStartRequest{})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(t, api, http.MethodPost, "/api/v1/shifts/end", operator, domain.ShiftEndRequest{Checklist: domain.HandoverChecklist{StockCounted: true}})
	assert.Equal(t, http.StatusPreconditionFailed, res.Code)

	res = do(t, api, http.MethodGet, "/api/v1/shifts/active", operator, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestReconciliationAndDailyReportCSV(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")
	openShift(t, api, operator)

	res := do(t, api, http.MethodPost, "/api/v1/orders", operator, domain.OrderCreateRequest{
		CheckoutOptions: domain.CheckoutOptions{PaymentMethod: domain.PaymentCash},
		Items:           []domain.CartItem{{ProductID: "prod-lpg-9kg", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, res.Code)

	path := "/api/v1/pods/" + memory.DemoPodID + "/reconciliation"
	res = do(t, api, http.MethodPost, path, operator, domain.ReconciliationRequest{ActualCash: decimal.NewFromInt(340)})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[map[string]domain.Reconciliation](t, res)["reconciliation"]
	assert.True(t, created.Variance.Equal(decimal.NewFromInt(-10)))

	res = do(t, api, http.MethodPost, path, operator, domain.ReconciliationRequest{ActualCash: decimal.NewFromInt(350)})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(t, api, http.MethodGet, path+"?date="+created.Date, operator, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, api, http.MethodGet, "/api/v1/reports/daily?pod_id="+memory.DemoPodID+"&format=csv", operator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"section", "key", "value"}, rows[0])
	assert.Contains(t, rows, []string{"summary", "cash_expected", "350.00"})
	assert.Contains(t, rows, []string{"payment", "cash_orders", "1"})
}

func TestAdminCreatesUserWhoCanLogin(t *testing.T) {
	api := newTestAPI(t)
	admin := login(t, api, "admin", "admin123")

	res := do(t, api, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{Username: "pod2-operator", Password: "counter-pass-2", Role: domain.RoleOperator})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	login(t, api, "pod2-operator", "counter-pass-2")
}

func TestOrderEventsStream(t *testing.T) {
	api := newTestAPI(t)
	operator := login(t, api, "operator", "operator123")
	openShift(t, api, operator)

	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/orders/events?pod_id="+memory.DemoPodID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+operator)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	res := do(t, api, http.MethodPost, "/api/v1/orders", operator, domain.OrderCreateRequest{
		CheckoutOptions: domain.CheckoutOptions{PaymentMethod: domain.PaymentCash},
		Items:           []domain.CartItem{{ProductID: "prod-lpg-9kg", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, res.Code)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: "+domain.OrderEventCreated+"\n", line)
			return
		}
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/service"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

const maxBodyBytes = 1 << 20

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	healthChecks  map[string]HealthCheck
	logger        *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		healthChecks:  make(map[string]HealthCheck),
		logger:        logger.With("component", "http"),
	}
}

// AddHealthCheck registers a dependency check reported by /healthz.
func (a *API) AddHealthCheck(name string, check HealthCheck) {
	a.healthChecks[name] = check
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var (
	staff      = []domain.Role{domain.RoleAdmin, domain.RoleOperator}
	fieldStaff = []domain.Role{domain.RoleAdmin, domain.RoleOperator, domain.RoleDriver}
	sellers    = []domain.Role{domain.RoleAdmin, domain.RoleOperator, domain.RoleCustomer}
	anyone     = []domain.Role{domain.RoleAdmin, domain.RoleOperator, domain.RoleDriver, domain.RoleCustomer}
)

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.With(a.requireAuth(anyone...)).Get("/products", a.handleListProducts)
		r.With(a.requireAuth(domain.RoleAdmin)).Post("/products", a.handleCreateProduct)
		r.With(a.requireAuth(domain.RoleAdmin)).Patch("/products/{id}", a.handleUpdateProduct)
		r.With(a.requireAuth(staff...)).Get("/products/{id}/price-history", a.handlePriceHistory)

		r.With(a.requireAuth(staff...)).Get("/customers", a.handleListCustomers)
		r.With(a.requireAuth(staff...)).Post("/customers", a.handleCreateCustomer)
		r.With(a.requireAuth(staff...)).Get("/customers/by-phone", a.handleCustomerByPhone)
		r.With(a.requireAuth(sellers...)).Get("/customers/{id}", a.handleGetCustomer)
		r.With(a.requireAuth(sellers...)).Post("/customers/{id}/addresses", a.handleAddAddress)

		r.Route("/carts/{sessionID}", func(r chi.Router) {
			r.Use(a.requireAuth(sellers...))
			r.Get("/", a.handleGetCart)
			r.Delete("/", a.handleClearCart)
			r.Post("/items", a.handleAddCartItem)
			r.Delete("/items/{productID}", a.handleRemoveCartItem)
			r.Put("/payment-method", a.handleSetCartPayment)
			r.Post("/checkout", a.handleCartCheckout)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(a.requireAuth(anyone...)).Get("/", a.handleListOrders)
			r.With(a.requireAuth(sellers...)).Post("/", a.handleCreateOrder)
			r.With(a.requireAuth(fieldStaff...)).Get("/events", a.handleOrderEvents)
			r.With(a.requireAuth(anyone...)).Get("/{id}", a.handleGetOrder)
			r.With(a.requireAuth(fieldStaff...)).Patch("/{id}/status", a.handleUpdateOrderStatus)
			r.With(a.requireAuth(staff...)).Patch("/{id}/payment", a.handleUpdatePayment)
		})

		r.With(a.requireAuth(fieldStaff...)).Get("/inventory/stock/{locationID}", a.handleGetStock)
		r.With(a.requireAuth(staff...)).Post("/inventory/receive", a.handleReceiveStock)
		r.With(a.requireAuth(staff...)).Post("/inventory/issue", a.handleIssueStock)

		r.With(a.requireAuth(staff...)).Post("/pods/{id}/reconciliation", a.handleReconcile)
		r.With(a.requireAuth(staff...)).Get("/pods/{id}/reconciliation", a.handleGetReconciliation)

		r.With(a.requireAuth(staff...)).Post("/shifts/start", a.handleShiftStart)
		r.With(a.requireAuth(staff...)).Post("/shifts/end", a.handleShiftEnd)
		r.With(a.requireAuth(staff...)).Get("/shifts/active", a.handleShiftActive)

		r.With(a.requireAuth(staff...)).Get("/reports/daily", a.handleDailyReport)
		r.With(a.requireAuth(domain.RoleAdmin)).Get("/audit-logs", a.handleAuditLogs)

		r.With(a.requireAuth(domain.RoleAdmin)).Get("/users", a.handleListUsers)
		r.With(a.requireAuth(domain.RoleAdmin)).Post("/users", a.handleCreateUser)
	})

	return r
}

func (a *API) requireAuth(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.healthChecks))
	for name, check := range a.healthChecks {
		if err := check(ctx); err != nil {
			a.logger.Warn("health check failed", "check", name, "error", err)
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"ok":     status == http.StatusOK,
		"checks": checks,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(startedAt),
		)
	})
}

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, store.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status; 5xx details stay in the log.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

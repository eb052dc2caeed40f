package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/service"
	"motocadena/backend/internal/settlement"
	"motocadena/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
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
	kept = append(kept, now)
	l.entries[key] = kept
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

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/catalog/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/catalog/services", a.requireAuth(a.handleServices, "cashier", "admin"))
	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, "cashier", "admin"))
	mux.HandleFunc("/api/v1/invoices/pending", a.requireAuth(a.handlePendingInvoices, "cashier", "admin"))
	mux.HandleFunc("/api/v1/rates/current", a.requireAuth(a.handleCurrentRate, "cashier", "admin"))

	mux.HandleFunc("/api/v1/pos/sessions", a.requireAuth(a.handleSessions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/pos/sessions/", a.requireAuth(a.handleSessionActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
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
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	services, err := a.service.ListServices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handlePendingInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	invoices, err := a.service.ListPendingInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (a *API) handleCurrentRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	rate, err := a.service.CurrentRate(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ExchangeRateResponse{
		Rate: rate,
		At:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	view := a.service.StartSession(r.Context())
	writeJSON(w, http.StatusCreated, view)
}

// handleSessionActions routes /api/v1/pos/sessions/{id}[/...] by method and
// subpath.
func (a *API) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/pos/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("session id required"))
		return
	}
	sessionID := parts[0]
	subpath := parts[1:]

	if len(subpath) == 0 {
		switch r.Method {
		case http.MethodGet:
			view, err := a.service.GetSession(r.Context(), sessionID)
			a.writeSessionResponse(w, view, err)
		case http.MethodDelete:
			if err := a.service.CancelSession(r.Context(), sessionID); err != nil {
				a.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch subpath[0] {
	case "cart":
		a.handleSessionCart(w, r, sessionID, subpath[1:])
	case "invoice":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SelectInvoiceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.SelectInvoice(r.Context(), sessionID, req)
		a.writeSessionResponse(w, view, err)
	case "customer":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.AssignCustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.AssignCustomer(r.Context(), sessionID, req)
		a.writeSessionResponse(w, view, err)
	case "target":
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		view, err := a.service.ClearTarget(r.Context(), sessionID)
		a.writeSessionResponse(w, view, err)
	case "allocations":
		a.handleSessionAllocations(w, r, sessionID, subpath[1:])
	case "commit":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		result, err := a.service.Commit(r.Context(), sessionID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown session action"))
	}
}

func (a *API) handleSessionCart(w http.ResponseWriter, r *http.Request, sessionID string, subpath []string) {
	if len(subpath) != 1 || subpath[0] != "items" {
		writeError(w, http.StatusNotFound, errors.New("unknown cart action"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req domain.AddCartItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.AddCartItem(r.Context(), sessionID, req)
		a.writeSessionResponse(w, view, err)
	case http.MethodPatch:
		var req domain.SetCartQuantityRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.SetCartQuantity(r.Context(), sessionID, req)
		a.writeSessionResponse(w, view, err)
	case http.MethodDelete:
		var req domain.RemoveCartItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.RemoveCartItem(r.Context(), sessionID, req)
		a.writeSessionResponse(w, view, err)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSessionAllocations(w http.ResponseWriter, r *http.Request, sessionID string, subpath []string) {
	switch {
	case len(subpath) == 0:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.AddAllocationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.AddAllocation(r.Context(), sessionID, req)
		a.writeSessionResponse(w, view, err)
	case len(subpath) == 1:
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		index, err := strconv.Atoi(subpath[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid allocation index"))
			return
		}
		view, err := a.service.RemoveAllocation(r.Context(), sessionID, index)
		a.writeSessionResponse(w, view, err)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown allocation action"))
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.service.ListUsers(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req domain.CreateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateUser(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) writeSessionResponse(w http.ResponseWriter, view domain.SessionView, err error) {
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// writeServiceError maps settlement and store errors to HTTP statuses. The
// settlement kind travels in the body so the UI can react (confirm dialogs,
// conflict banners) without parsing messages.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var se *settlement.Error
	if errors.As(err, &se) {
		status := http.StatusConflict
		switch se.Kind {
		case settlement.KindInvalidAmount:
			status = http.StatusBadRequest
		case settlement.KindOverAllocation:
			status = http.StatusUnprocessableEntity
		case settlement.KindCommitFailed:
			status = http.StatusBadGateway
		}
		if se.Err != nil {
			log.Printf("[httpapi] settlement error kind=%s: %v", se.Kind, se.Err)
		}
		writeJSON(w, status, map[string]any{
			"error": se.Message,
			"kind":  string(se.Kind),
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvoiceNotPending):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInvalidCommit):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodDelete) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

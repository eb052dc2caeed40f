package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/rates"
	"motocadena/backend/internal/service"
	"motocadena/backend/internal/store/memory"
)

func newTestAPI() http.Handler {
	repo := memory.NewSeeded()
	svc := service.New(repo, rates.FixedSource{Value: decimal.RequireFromString("55")})
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, repo)
	return New(svc, auth, "http://127.0.0.1:3000").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler) string {
	t.Helper()
	return loginAs(t, handler, "cajero", "cajero123")
}

func loginAs(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler := newTestAPI()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "cajero",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI()
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/catalog/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI()
	token := login(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pos/sessions", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session failed: %d %s", rec.Code, rec.Body.String())
	}
	var view domain.SessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	base := "/api/v1/pos/sessions/" + view.ID

	// No target yet: allocations are rejected with a typed kind.
	rec = doJSON(t, handler, http.MethodPost, base+"/allocations", token, domain.AddAllocationRequest{
		Method: domain.MethodCashUSD,
		Amount: "10",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without target, got %d %s", rec.Code, rec.Body.String())
	}
	var errBody struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil || errBody.Kind != "no_target_selected" {
		t.Fatalf("expected no_target_selected kind, got %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices/pending", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list invoices failed: %d", rec.Code)
	}
	var invoicesBody struct {
		Invoices []domain.PendingInvoice `json:"invoices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &invoicesBody); err != nil || len(invoicesBody.Invoices) == 0 {
		t.Fatalf("expected pending invoices, got %s", rec.Body.String())
	}
	invoice := invoicesBody.Invoices[0]

	rec = doJSON(t, handler, http.MethodPost, base+"/invoice", token, domain.SelectInvoiceRequest{InvoiceID: invoice.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("select invoice failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/allocations", token, domain.AddAllocationRequest{
		Method: domain.MethodCashUSD,
		Amount: invoice.TotalAmount.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("allocation failed: %d %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	if !view.Settled {
		t.Fatalf("expected settled view: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/commit", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit failed: %d %s", rec.Code, rec.Body.String())
	}
	var result domain.SettlementResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.InvoiceID != invoice.ID {
		t.Fatalf("expected invoice %s in result, got %+v", invoice.ID, result)
	}

	rec = doJSON(t, handler, http.MethodGet, base, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for committed session, got %d", rec.Code)
	}
}

func TestOverAllocationReturns422(t *testing.T) {
	handler := newTestAPI()
	token := login(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pos/sessions", token, nil)
	var view domain.SessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	base := "/api/v1/pos/sessions/" + view.ID

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices/pending", token, nil)
	var invoicesBody struct {
		Invoices []domain.PendingInvoice `json:"invoices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &invoicesBody); err != nil || len(invoicesBody.Invoices) == 0 {
		t.Fatalf("expected pending invoices, got %s", rec.Body.String())
	}
	invoice := invoicesBody.Invoices[0]

	rec = doJSON(t, handler, http.MethodPost, base+"/invoice", token, domain.SelectInvoiceRequest{InvoiceID: invoice.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("select invoice failed: %d", rec.Code)
	}

	over := invoice.TotalAmount.Add(decimal.RequireFromString("5"))
	rec = doJSON(t, handler, http.MethodPost, base+"/allocations", token, domain.AddAllocationRequest{
		Method: domain.MethodCashUSD,
		Amount: over.String(),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCurrentRateEndpoint(t *testing.T) {
	handler := newTestAPI()
	token := login(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/rates/current", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rate endpoint failed: %d", rec.Code)
	}
	var resp domain.ExchangeRateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode rate: %v", err)
	}
	if !resp.Rate.Equal(decimal.RequireFromString("55")) {
		t.Fatalf("expected rate 55, got %s", resp.Rate)
	}
}

func TestUserAdminEndpoints(t *testing.T) {
	handler := newTestAPI()
	adminToken := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users failed: %d %s", rec.Code, rec.Body.String())
	}
	var usersBody struct {
		Users []domain.UserView `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &usersBody); err != nil || len(usersBody.Users) < 2 {
		t.Fatalf("expected seeded users, got %s", rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("password")) {
		t.Fatalf("user listing must not expose credentials: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", adminToken, domain.CreateUserRequest{
		Username: "tornero",
		Password: "secreto1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user failed: %d %s", rec.Code, rec.Body.String())
	}
	var created domain.UserView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if created.Role != "cashier" || !created.Active {
		t.Fatalf("unexpected created user %+v", created)
	}

	// The fresh account can log in right away.
	cashierToken := loginAs(t, handler, "tornero", "secreto1")

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", adminToken, domain.CreateUserRequest{
		Username: "tornero",
		Password: "secreto1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/users", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on users endpoint, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	handler := newTestAPI()

	var lastCode int
	for i := 0; i < 7; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Username: "cajero",
			Password: fmt.Sprintf("wrong-%d", i),
		})
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", lastCode)
	}
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"stocklane/backend/internal/cache"
	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/service"
	"stocklane/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := service.New(repo, cache.NoopListingCache{}, 30*time.Second, log)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*", log)
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

// doJSON fires an authenticated JSON request with a fresh CSRF token attached.
func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListWithToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
	if body["total"] == nil || body["page"] == nil {
		t.Fatalf("expected pagination envelope, got %v", body)
	}
}

func TestCreateBrand_AdminOnly(t *testing.T) {
	api := newTestAPI(t)

	adminToken := loginAs(t, api, "admin", "admin123")
	res := doJSON(t, api, http.MethodPost, "/api/v1/brands", adminToken, map[string]string{"name": "Acme"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d (body: %s)", res.Code, res.Body.String())
	}

	staffToken := loginAs(t, api, "staff", "staff123")
	res = doJSON(t, api, http.MethodPost, "/api/v1/brands", staffToken, map[string]string{"name": "Nope"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestDeleteBrand_MalformedIDReportsNoOp(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodDelete, "/api/v1/brands/not-an-id", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["deleted"] != false {
		t.Fatalf("expected deleted:false, got %v", body["deleted"])
	}
}

func TestCreateSale_ThenOversellConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	sale := map[string]any{
		"customer_id": memory.SeedCustomerID,
		"branch_id":   memory.SeedBranchID,
		"paid_amount": "150",
		"items": []map[string]any{
			{"product_id": memory.SeedProductID, "qty": 2, "unit_price": "75"},
		},
	}
	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, sale)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	oversell := map[string]any{
		"customer_id": memory.SeedCustomerID,
		"branch_id":   memory.SeedBranchID,
		"items": []map[string]any{
			{"product_id": memory.SeedProductID, "qty": 999, "unit_price": "75"},
		},
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, oversell)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversell, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestBalancePayment_RejectsTwoParties(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/balance-payments", token, map[string]any{
		"customer_id": memory.SeedCustomerID,
		"supplier_id": memory.SeedSupplierID,
		"amount":      "10",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestStockReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/stock", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Rows []domain.StockReportRow `json:"rows"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Rows) != 1 {
		t.Fatalf("expected 1 seeded row, got %d", len(body.Rows))
	}
}

func TestProfitLoss_StaffRoleRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "staff", "staff123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/profit-loss", token, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestStockExport_ServesWorkbook(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/stock/export", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", got)
	}
	if res.Body.Len() == 0 {
		t.Fatalf("expected non-empty workbook body")
	}
}

func TestStaffUsers_CreateAndList(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/users/staff", token, map[string]string{
		"username": "cashier2",
		"password": "secret99",
		"branch":   memory.SeedBranchID,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/users/staff", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Staff []domain.StaffUser `json:"staff"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	found := false
	for _, s := range body.Staff {
		if s.Username == "cashier2" && s.Branch == memory.SeedBranchID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cashier2 in staff list, got %v", body.Staff)
	}

	// The fresh account can log in straight away.
	loginAs(t, api, "cashier2", "secret99")
}

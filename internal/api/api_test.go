package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"storefront-service/internal/cart"
	"storefront-service/internal/config"
	"storefront-service/internal/events"
	"storefront-service/internal/kv"
	"storefront-service/internal/repository"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
)

const testSecret = "test-secret"

type apiFixture struct {
	e  *echo.Echo
	db *store.MemoryStore
	kv *kv.MemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := store.NewMemoryStore()
	db.Seed("products",
		store.Row{"id": "A", "name": "Batik Shirt", "price": decimal.NewFromInt(10000), "stock": 5, "active": true},
		store.Row{"id": "B", "name": "Tote Bag", "price": decimal.NewFromInt(5000), "stock": 5, "active": true},
	)
	db.Seed("articles", store.Row{"id": "x", "title": "Annual meeting", "views": int64(0)})
	kvStore := kv.NewMemoryStore()

	products := repository.NewProductRepository(db)
	orders := service.NewOrderService(
		repository.NewOrderRepository(db),
		service.NewCatalogValidator(products, 0),
		service.NewStockReconciler(products, config.ModeAtomic),
		kvStore,
		events.NoopPublisher{},
		decimal.NewFromInt(15000),
		time.Minute,
	)
	views := service.NewViewRecorder(repository.NewArticleRepository(db), kvStore, config.ModeAtomic, time.Hour)

	e := echo.New()
	NewHandler(cart.NewManager(kvStore, time.Hour), products, orders, views).
		Register(e, JWTMiddleware(testSecret), NewRateLimiter(100, 100), "storefront-service")
	return &apiFixture{e: e, db: db, kv: kvStore}
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

type call struct {
	method  string
	path    string
	body    string
	session string
	token   string
}

func (f *apiFixture) do(c call) *httptest.ResponseRecorder {
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}
	if c.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON body, got %q", rec.Body.String())
	}
	return body
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func (f *apiFixture) fillCart(t *testing.T, session string) {
	t.Helper()
	expectStatus(t, f.do(call{method: http.MethodPut, path: "/cart/items/A", body: `{"quantity":2}`, session: session}), http.StatusOK)
	expectStatus(t, f.do(call{method: http.MethodPut, path: "/cart/items/B", body: `{"quantity":1}`, session: session}), http.StatusOK)
}

func TestCartRoutes(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":"A","quantity":7}`, session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	rec = f.do(call{method: http.MethodPut, path: "/cart/items/B", body: `{"quantity":2}`, session: "s-1"})
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(call{method: http.MethodGet, path: "/cart", session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	var resp cartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 || resp.Items[0] != (cart.Item{ProductID: "A", Quantity: 5}) || resp.Items[1] != (cart.Item{ProductID: "B", Quantity: 2}) {
		t.Errorf("Unexpected items %v", resp.Items)
	}
	if resp.Total == nil || !resp.Total.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("Expected total 60000, got %v", resp.Total)
	}

	rec = f.do(call{method: http.MethodPut, path: "/cart/items/B", body: `{"quantity":9}`, session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 || resp.Items[1] != (cart.Item{ProductID: "B", Quantity: 5}) {
		t.Errorf("Expected PUT above stock clamped to 5, got %v", resp.Items)
	}
	expectStatus(t, f.do(call{method: http.MethodPut, path: "/cart/items/Z", body: `{"quantity":1}`, session: "s-1"}), http.StatusNotFound)

	expectStatus(t, f.do(call{method: http.MethodDelete, path: "/cart/items/A", session: "s-1"}), http.StatusOK)
	rec = f.do(call{method: http.MethodPut, path: "/cart/items/B", body: `{"quantity":0}`, session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	if items := decode(t, rec)["items"].([]interface{}); len(items) != 0 {
		t.Errorf("Expected empty cart, got %v", items)
	}

	expectStatus(t, f.do(call{method: http.MethodGet, path: "/cart"}), http.StatusBadRequest)
	expectStatus(t, f.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":"Z","quantity":1}`, session: "s-1"}), http.StatusNotFound)
	expectStatus(t, f.do(call{method: http.MethodPost, path: "/cart/items", body: `{"product_id":"A","quantity":0}`, session: "s-1"}), http.StatusBadRequest)
}

func TestDegradedCartStaysInMemory(t *testing.T) {
	f := newAPIFixture(t)
	f.kv.FailOn(kv.OpSet, errors.New("quota exceeded"), 0)

	rec := f.do(call{method: http.MethodPut, path: "/cart/items/A", body: `{"quantity":2}`, session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	if degraded, _ := decode(t, rec)["degraded"].(bool); !degraded {
		t.Errorf("Expected degraded cart")
	}

	rec = f.do(call{method: http.MethodGet, path: "/cart", session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	if items := decode(t, rec)["items"].([]interface{}); len(items) != 1 {
		t.Errorf("Expected in-memory item to survive, got %v", items)
	}
}

func TestCheckoutAndOrderAccess(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "s-1")
	owner := token(t, "u-1", RoleCustomer)

	rec := f.do(call{method: http.MethodPost, path: "/checkout", body: `{"shipping_address":"Jl. Merdeka 1","payment_method":"e_wallet"}`, session: "s-1", token: owner})
	expectStatus(t, rec, http.StatusCreated)
	body := decode(t, rec)
	orderID, _ := body["order_id"].(string)
	if orderID == "" || body["state"] != string(service.StateDone) || body["total_amount"] != "40000" {
		t.Fatalf("Unexpected checkout response %v", body)
	}

	rec = f.do(call{method: http.MethodGet, path: "/cart", session: "s-1"})
	if items := decode(t, rec)["items"].([]interface{}); len(items) != 0 {
		t.Errorf("Expected cart cleared, got %v", items)
	}

	expectStatus(t, f.do(call{method: http.MethodGet, path: "/orders/" + orderID, token: owner}), http.StatusOK)
	expectStatus(t, f.do(call{method: http.MethodGet, path: "/orders/" + orderID, token: token(t, "u-2", RoleCustomer)}), http.StatusForbidden)
	expectStatus(t, f.do(call{method: http.MethodGet, path: "/orders/" + orderID, token: token(t, "s-9", RoleSeller)}), http.StatusOK)
	expectStatus(t, f.do(call{method: http.MethodGet, path: "/orders/missing", token: owner}), http.StatusNotFound)
}

func TestCheckoutRequiresToken(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "s-1")
	rec := f.do(call{method: http.MethodPost, path: "/checkout", body: `{"shipping_address":"x","payment_method":"e_wallet"}`, session: "s-1"})
	expectStatus(t, rec, http.StatusUnauthorized)
	rec = f.do(call{method: http.MethodPost, path: "/checkout", body: `{"shipping_address":"x","payment_method":"e_wallet"}`, session: "s-1", token: "not-a-jwt"})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCheckoutErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *apiFixture)
		body   string
		status int
		field  string
	}{
		{
			name: "Shortage",
			setup: func(f *apiFixture) {
				_, _ = f.db.Update(context.Background(), "products", store.Filter{store.Eq("id", "A")}, store.Patch{"stock": 1})
			},
			body:   `{"shipping_address":"x","payment_method":"e_wallet"}`,
			status: http.StatusUnprocessableEntity,
			field:  "shortages",
		},
		{
			name: "Deactivated product",
			setup: func(f *apiFixture) {
				_, _ = f.db.Update(context.Background(), "products", store.Filter{store.Eq("id", "B")}, store.Patch{"active": false})
			},
			body:   `{"shipping_address":"x","payment_method":"e_wallet"}`,
			status: http.StatusConflict,
			field:  "rejected_lines",
		},
		{
			name: "Orphaned order",
			setup: func(f *apiFixture) {
				f.db.FailOn(store.OpInsert, "order_items", errors.New("connection reset"))
			},
			body:   `{"shipping_address":"x","payment_method":"e_wallet"}`,
			status: http.StatusBadGateway,
			field:  "order_id",
		},
		{
			name:   "Unknown payment method",
			setup:  func(f *apiFixture) {},
			body:   `{"shipping_address":"x","payment_method":"barter"}`,
			status: http.StatusBadRequest,
			field:  "error",
		},
		{
			name: "Checkout in progress",
			setup: func(f *apiFixture) {
				_ = f.kv.Set(context.Background(), "storefront:checkout-lock:s-1", "locked", time.Minute)
			},
			body:   `{"shipping_address":"x","payment_method":"e_wallet"}`,
			status: http.StatusTooManyRequests,
			field:  "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.fillCart(t, "s-1")
			tt.setup(f)

			rec := f.do(call{method: http.MethodPost, path: "/checkout", body: tt.body, session: "s-1", token: token(t, "u-1", RoleCustomer)})
			expectStatus(t, rec, tt.status)
			if _, ok := decode(t, rec)[tt.field]; !ok {
				t.Errorf("Expected field %q in %s", tt.field, rec.Body.String())
			}
		})
	}
}

func TestUpdateOrderStatusRoute(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "s-1")
	rec := f.do(call{method: http.MethodPost, path: "/checkout", body: `{"shipping_address":"x","payment_method":"credit_card"}`, session: "s-1", token: token(t, "u-1", RoleCustomer)})
	expectStatus(t, rec, http.StatusCreated)
	path := "/orders/" + decode(t, rec)["order_id"].(string) + "/status"
	seller := token(t, "s-9", RoleSeller)

	expectStatus(t, f.do(call{method: http.MethodPatch, path: path, body: `{"status":"processing"}`, token: token(t, "u-1", RoleCustomer)}), http.StatusForbidden)
	expectStatus(t, f.do(call{method: http.MethodPatch, path: path, body: `{"status":"lost"}`, token: seller}), http.StatusBadRequest)
	expectStatus(t, f.do(call{method: http.MethodPatch, path: path, body: `{"status":"processing"}`, token: seller}), http.StatusOK)
	expectStatus(t, f.do(call{method: http.MethodPatch, path: path, body: `{"status":"delivered"}`, token: token(t, "a-1", RoleAdmin)}), http.StatusConflict)
}

func TestRecordViewRoute(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(call{method: http.MethodPost, path: "/articles/x/views", session: "s-1"})
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["recorded"] != true {
		t.Errorf("Expected first view recorded")
	}
	rec = f.do(call{method: http.MethodPost, path: "/articles/x/views", session: "s-1"})
	if decode(t, rec)["recorded"] != false {
		t.Errorf("Expected repeat view not recorded")
	}

	expectStatus(t, f.do(call{method: http.MethodPost, path: "/articles/x/views"}), http.StatusBadRequest)
	expectStatus(t, f.do(call{method: http.MethodPost, path: "/articles/nope/views", session: "s-1"}), http.StatusNotFound)
}

func TestRateLimiterIgnoresSessionHeader(t *testing.T) {
	e := echo.New()
	e.POST("/checkout", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, NewRateLimiter(1, 1))

	send := func(session, remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		req.RemoteAddr = remoteAddr
		req.Header.Set(SessionHeader, session)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("s-1", "203.0.113.7:4000"); code != http.StatusNoContent {
		t.Fatalf("Expected first request allowed, got %d", code)
	}
	if code := send("s-2", "203.0.113.7:4001"); code != http.StatusTooManyRequests {
		t.Errorf("Expected new session from same IP limited, got %d", code)
	}
	if code := send("s-3", "198.51.100.2:4000"); code != http.StatusNoContent {
		t.Errorf("Expected other IP allowed, got %d", code)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(call{method: http.MethodGet, path: "/health"})
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["status"] != "ok" {
		t.Errorf("Expected status ok")
	}
}

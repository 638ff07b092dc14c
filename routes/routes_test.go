package routes

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"souq-backend/cache"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "routes-test-signing-key")
}

// routesSchema mirrors the migrated tables in SQLite dialect. AutoMigrate
// would trip over postgres-only column defaults in the model tags.
const routesSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, password TEXT NOT NULL,
	name TEXT, role TEXT DEFAULT 'customer', phone TEXT, is_blocked INTEGER DEFAULT 0,
	created_at DATETIME, updated_at DATETIME, deleted_at DATETIME);
CREATE TABLE refresh_tokens (
	id TEXT PRIMARY KEY, user_id TEXT NOT NULL, token TEXT NOT NULL UNIQUE,
	expires_at DATETIME NOT NULL, revoked_at DATETIME, created_at DATETIME);
CREATE TABLE categories (
	id TEXT PRIMARY KEY, name TEXT NOT NULL, name_ar TEXT, slug TEXT NOT NULL UNIQUE,
	parent_id TEXT, is_active INTEGER NOT NULL DEFAULT 1, sort_order INTEGER DEFAULT 0,
	created_at DATETIME, updated_at DATETIME, deleted_at DATETIME);
CREATE TABLE category_attribute_sets (
	id TEXT PRIMARY KEY, category_id TEXT NOT NULL UNIQUE, definitions TEXT,
	created_at DATETIME, updated_at DATETIME);
CREATE TABLE products (
	id TEXT PRIMARY KEY, name TEXT NOT NULL, name_ar TEXT, slug TEXT NOT NULL UNIQUE,
	description TEXT, price REAL NOT NULL, compare_at_price REAL,
	category_id TEXT NOT NULL, attributes TEXT, stock_quantity INTEGER DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1, is_featured INTEGER DEFAULT 0,
	is_sponsored INTEGER DEFAULT 0, view_count INTEGER DEFAULT 0,
	created_at DATETIME, updated_at DATETIME, deleted_at DATETIME);
CREATE TABLE cart_items (
	id TEXT PRIMARY KEY, user_id TEXT NOT NULL, product_id TEXT NOT NULL,
	quantity INTEGER DEFAULT 1, created_at DATETIME, updated_at DATETIME);
CREATE TABLE favourites (
	id TEXT PRIMARY KEY, user_id TEXT NOT NULL, product_id TEXT NOT NULL,
	created_at DATETIME);
CREATE TABLE coupons (
	id TEXT PRIMARY KEY, code TEXT NOT NULL UNIQUE, type TEXT NOT NULL, value REAL NOT NULL,
	min_subtotal REAL DEFAULT 0, expires_at DATETIME, is_active INTEGER NOT NULL DEFAULT 1,
	usage_limit INTEGER DEFAULT 0, used_count INTEGER DEFAULT 0,
	created_at DATETIME, updated_at DATETIME, deleted_at DATETIME);
CREATE TABLE orders (
	id TEXT PRIMARY KEY, user_id TEXT NOT NULL, order_number TEXT NOT NULL UNIQUE,
	status TEXT DEFAULT 'pending', subtotal REAL NOT NULL, discount REAL DEFAULT 0,
	delivery_fee REAL DEFAULT 0, total REAL NOT NULL, coupon_code TEXT,
	delivery_address TEXT, payment_method TEXT,
	created_at DATETIME, updated_at DATETIME, deleted_at DATETIME);
CREATE TABLE order_items (
	id TEXT PRIMARY KEY, order_id TEXT NOT NULL, product_id TEXT NOT NULL,
	product_name TEXT, quantity INTEGER NOT NULL, price REAL NOT NULL,
	created_at DATETIME, updated_at DATETIME)`

// newTestServer wires the full route table against a fresh in-memory
// database and cache.
func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range strings.Split(routesSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema: %v", err)
		}
	}

	r := gin.New()
	SetupRoutes(r, db, cache.NewMemory())
	return r
}

func serve(r *gin.Engine, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouteAccess(t *testing.T) {
	r := newTestServer(t)
	customer, _ := utils.GenerateToken(uuid.New(), "shopper@souq.example", "customer")
	admin, _ := utils.GenerateToken(uuid.New(), "ops@souq.example", "admin")

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"product listing is public", "/api/products", "", http.StatusOK},
		{"category tree is public", "/api/categories", "", http.StatusOK},
		{"cart needs a token", "/api/cart", "", http.StatusUnauthorized},
		{"cart accepts a customer", "/api/cart", customer, http.StatusOK},
		{"admin products rejects customers", "/api/admin/products", customer, http.StatusForbidden},
		{"admin coupons accepts admins", "/api/admin/coupons", admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, "GET", tt.path, tt.token, nil)
			if w.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d: %s", tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(t)

	// One API request so the request counter has a sample to expose.
	serve(r, "GET", "/api/products", "", nil)

	w := serve(r, "GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	scrape := w.Body.String()
	if !strings.Contains(scrape, "go_goroutines") {
		t.Error("scrape output is missing runtime metrics")
	}
	if !strings.Contains(scrape, "souq_http_requests_total") {
		t.Error("scrape output is missing the request counter")
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	r := newTestServer(t)

	// The auth limiter grants a burst of 10 per client IP.
	var last int
	for i := 0; i < 11; i++ {
		w := serve(r, "POST", "/api/auth/login", "", strings.NewReader(`{}`))
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("11th login attempt = %d, want 429", last)
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"souq-backend/cache"
	"souq-backend/middleware"
	"souq-backend/models"
	"souq-backend/services"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDB *gorm.DB

// TestMain opens one shared in-memory database for the whole package. The
// shared-cache URI plus a single connection keep every goroutine, import
// workers included, on the same schema.
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-key-for-unit-tests")

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	// Raw DDL instead of AutoMigrate: the model tags carry postgres-only
	// defaults such as gen_random_uuid().
	if err := createTestSchema(db); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	testDB = db
	os.Exit(m.Run())
}

// Child tables first, so freshDB can delete without tripping foreign keys.
var testTables = []string{
	"order_items", "orders", "cart_items", "favourites",
	"category_attribute_sets", "products", "categories",
	"coupons", "refresh_tokens", "users",
}

// freshDB wipes all rows so each test starts from an empty store.
func freshDB() *gorm.DB {
	for _, table := range testTables {
		testDB.Exec("DELETE FROM " + table)
	}
	return testDB
}

// createTestSchema builds the schema with SQLite-flavoured DDL. Only the
// unique indexes are carried over; the handlers rely on those for conflict
// detection while the plain lookup indexes are irrelevant at test scale.
func createTestSchema(db *gorm.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS "users" (
			"id" TEXT PRIMARY KEY, "email" TEXT NOT NULL UNIQUE, "password" TEXT NOT NULL,
			"name" TEXT, "role" TEXT DEFAULT 'customer', "phone" TEXT, "is_blocked" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "refresh_tokens" (
			"id" TEXT PRIMARY KEY, "user_id" TEXT NOT NULL REFERENCES "users"("id"),
			"token" TEXT NOT NULL UNIQUE, "expires_at" DATETIME NOT NULL,
			"revoked_at" DATETIME, "created_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "categories" (
			"id" TEXT PRIMARY KEY, "name" TEXT NOT NULL, "name_ar" TEXT,
			"slug" TEXT NOT NULL UNIQUE, "parent_id" TEXT REFERENCES "categories"("id"),
			"is_active" INTEGER NOT NULL DEFAULT 1, "sort_order" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "category_attribute_sets" (
			"id" TEXT PRIMARY KEY, "category_id" TEXT NOT NULL UNIQUE REFERENCES "categories"("id"),
			"definitions" TEXT, "created_at" DATETIME, "updated_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "products" (
			"id" TEXT PRIMARY KEY, "name" TEXT NOT NULL, "name_ar" TEXT,
			"slug" TEXT NOT NULL UNIQUE, "description" TEXT,
			"price" REAL NOT NULL, "compare_at_price" REAL,
			"category_id" TEXT NOT NULL REFERENCES "categories"("id"), "attributes" TEXT,
			"stock_quantity" INTEGER DEFAULT 0, "is_active" INTEGER NOT NULL DEFAULT 1,
			"is_featured" INTEGER DEFAULT 0, "is_sponsored" INTEGER DEFAULT 0, "view_count" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "cart_items" (
			"id" TEXT PRIMARY KEY, "user_id" TEXT NOT NULL REFERENCES "users"("id"),
			"product_id" TEXT NOT NULL REFERENCES "products"("id"), "quantity" INTEGER DEFAULT 1,
			"created_at" DATETIME, "updated_at" DATETIME)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_user_product ON "cart_items"("user_id","product_id")`,

		`CREATE TABLE IF NOT EXISTS "favourites" (
			"id" TEXT PRIMARY KEY, "user_id" TEXT NOT NULL REFERENCES "users"("id"),
			"product_id" TEXT NOT NULL REFERENCES "products"("id"), "created_at" DATETIME)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_fav_user_product ON "favourites"("user_id","product_id")`,

		`CREATE TABLE IF NOT EXISTS "coupons" (
			"id" TEXT PRIMARY KEY, "code" TEXT NOT NULL UNIQUE, "type" TEXT NOT NULL,
			"value" REAL NOT NULL, "min_subtotal" REAL DEFAULT 0, "expires_at" DATETIME,
			"is_active" INTEGER NOT NULL DEFAULT 1, "usage_limit" INTEGER DEFAULT 0, "used_count" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "orders" (
			"id" TEXT PRIMARY KEY, "user_id" TEXT NOT NULL REFERENCES "users"("id"),
			"order_number" TEXT NOT NULL UNIQUE, "status" TEXT DEFAULT 'pending',
			"subtotal" REAL NOT NULL, "discount" REAL DEFAULT 0, "delivery_fee" REAL DEFAULT 0,
			"total" REAL NOT NULL, "coupon_code" TEXT, "delivery_address" TEXT, "payment_method" TEXT,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME)`,

		`CREATE TABLE IF NOT EXISTS "order_items" (
			"id" TEXT PRIMARY KEY, "order_id" TEXT NOT NULL REFERENCES "orders"("id"),
			"product_id" TEXT NOT NULL REFERENCES "products"("id"), "product_name" TEXT,
			"quantity" INTEGER NOT NULL, "price" REAL NOT NULL,
			"created_at" DATETIME, "updated_at" DATETIME)`,
	}

	for _, ddl := range tables {
		if err := db.Exec(ddl).Error; err != nil {
			return err
		}
	}
	return nil
}

// ==================== Seed Helpers ====================

// seedTestUser creates a user with the given role and returns it along with a valid JWT token.
func seedTestUser(db *gorm.DB, email, role string) (models.User, string) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	user := models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hashed),
		Name:     "Test User",
		Role:     role,
	}
	db.Create(&user)

	token, _ := utils.GenerateToken(user.ID, user.Email, user.Role)
	return user, token
}

// seedCategory creates an active category. The slug is derived from the name,
// so names must be unique within one test.
func seedCategory(db *gorm.DB, name string, parentID *uuid.UUID) models.Category {
	cat := models.Category{
		ID:       uuid.New(),
		Name:     name,
		Slug:     utils.Slugify(name),
		ParentID: parentID,
		IsActive: true,
	}
	db.Create(&cat)
	return cat
}

// seedProduct creates an active product with stock.
func seedProduct(db *gorm.DB, name string, categoryID uuid.UUID, price float64) models.Product {
	prod := models.Product{
		ID:            uuid.New(),
		Name:          name,
		Slug:          utils.Slugify(name),
		Price:         price,
		CategoryID:    categoryID,
		StockQuantity: 100,
		IsActive:      true,
	}
	db.Create(&prod)
	return prod
}

// seedAttributeSet stores attribute definitions directly on a category.
func seedAttributeSet(db *gorm.DB, categoryID uuid.UUID, defs models.AttributeDefinitionList) models.CategoryAttributeSet {
	set := models.CategoryAttributeSet{
		ID:          uuid.New(),
		CategoryID:  categoryID,
		Definitions: defs,
	}
	db.Create(&set)
	return set
}

// seedCoupon creates an active coupon with no expiry or usage limit.
func seedCoupon(db *gorm.DB, code string, ctype models.CouponType, value float64) models.Coupon {
	coupon := models.Coupon{
		ID:       uuid.New(),
		Code:     code,
		Type:     ctype,
		Value:    value,
		IsActive: true,
	}
	db.Create(&coupon)
	return coupon
}

// seedCartItem puts a product into a user's cart.
func seedCartItem(db *gorm.DB, userID, productID uuid.UUID, quantity int) models.CartItem {
	item := models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}
	db.Create(&item)
	return item
}

// seedOrder creates an order in the given status with one item of quantity 2.
func seedOrder(db *gorm.DB, userID, productID uuid.UUID, status models.OrderStatus) models.Order {
	orderID := uuid.New()
	order := models.Order{
		ID:       orderID,
		UserID:   userID,
		Status:   status,
		Subtotal: 20.00,
		Total:    23.75,
		Items: []models.OrderItem{
			{
				ID:        uuid.New(),
				OrderID:   orderID,
				ProductID: productID,
				Quantity:  2,
				Price:     10.00,
			},
		},
	}
	db.Create(&order)
	// GORM skips zero-value fields with defaults, so force the status we want.
	db.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status)
	return order
}

// ==================== Router Setup Helpers ====================

// newCatalogServices builds the service stack handler routers need, each with
// its own in-memory cache so tests cannot see each other's cached trees.
func newCatalogServices(db *gorm.DB) (*services.CategoryService, *services.AttributeService, *services.CatalogService) {
	store := cache.NewMemory()
	categoryService := services.NewCategoryService(db, store)
	attributeService := services.NewAttributeService(db, store)
	catalogService := services.NewCatalogService(db, categoryService, attributeService)
	return categoryService, attributeService, catalogService
}

// setupAuthRouter sets up routes for auth handler tests.
func setupAuthRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	authHandler := &AuthHandler{DB: db}

	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	protected.GET("/auth/profile", authHandler.GetProfile)
	protected.PUT("/auth/profile", authHandler.UpdateProfile)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/users", authHandler.ListUsers)
	admin.PATCH("/users/:id/block", authHandler.BlockUser)

	return r
}

// setupCategoryRouter sets up routes for category handler tests.
func setupCategoryRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	categoryService, attributeService, _ := newCatalogServices(db)
	categoryHandler := &CategoryHandler{Categories: categoryService, Attributes: attributeService}

	api := r.Group("/api")
	api.GET("/categories", categoryHandler.GetTree)
	api.GET("/categories/path/*path", categoryHandler.ResolvePath)
	api.GET("/categories/:id", categoryHandler.GetCategory)
	api.GET("/categories/:id/breadcrumb", categoryHandler.GetBreadcrumb)
	api.GET("/categories/:id/filters", categoryHandler.GetFilters)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/categories", categoryHandler.ListCategories)
	admin.POST("/categories", categoryHandler.CreateCategory)
	admin.PUT("/categories/:id", categoryHandler.UpdateCategory)
	admin.PATCH("/categories/:id/deactivate", categoryHandler.DeactivateCategory)
	admin.PATCH("/categories/:id/activate", categoryHandler.ActivateCategory)
	admin.DELETE("/categories/:id", categoryHandler.DeleteCategory)

	return r
}

// setupAttributeRouter sets up routes for attribute definition tests.
func setupAttributeRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	_, attributeService, _ := newCatalogServices(db)
	attributeHandler := &AttributeHandler{Attributes: attributeService}

	api := r.Group("/api")
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/category-attributes/:categoryId", attributeHandler.GetDefinitions)
	admin.PUT("/category-attributes/:categoryId", attributeHandler.PutDefinitions)
	admin.DELETE("/category-attributes/:categoryId", attributeHandler.DeleteDefinitions)

	return r
}

// setupProductRouter sets up routes for product handler tests.
func setupProductRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	categoryService, _, catalogService := newCatalogServices(db)
	productHandler := &ProductHandler{DB: db, Catalog: catalogService, Categories: categoryService}

	api := r.Group("/api")

	// Public routes
	api.GET("/products", productHandler.GetProducts)
	api.GET("/products/autocomplete", productHandler.Autocomplete)
	api.GET("/products/slug/:slug", productHandler.GetProductBySlug)
	api.GET("/products/:id", productHandler.GetProduct)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/products", productHandler.GetProductsAdmin)
	admin.POST("/products", productHandler.CreateProduct)
	admin.PUT("/products/:id", productHandler.UpdateProduct)
	admin.DELETE("/products/:id", productHandler.DeleteProduct)
	admin.POST("/products/import", productHandler.ImportProducts)
	admin.GET("/products/import/:id", productHandler.GetImportStatus)

	return r
}

// setupCartRouter mounts just the cart endpoints.
func setupCartRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	cartHandler := &CartHandler{DB: db}

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	protected.GET("/cart", cartHandler.GetCart)
	protected.POST("/cart", cartHandler.AddToCart)
	protected.PUT("/cart/:id", cartHandler.UpdateCartItem)
	protected.DELETE("/cart/:id", cartHandler.RemoveFromCart)
	protected.DELETE("/cart", cartHandler.ClearCart)

	return r
}

// setupOrderRouter sets up routes for order handler tests.
func setupOrderRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	orderHandler := &OrderHandler{DB: db}

	api := r.Group("/api")

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	protected.POST("/orders", orderHandler.CreateOrder)
	protected.GET("/orders", orderHandler.GetOrders)
	protected.GET("/orders/:id", orderHandler.GetOrder)
	protected.POST("/orders/:id/cancel", orderHandler.CancelOrder)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/orders", orderHandler.ListOrders)
	admin.PUT("/orders/:id/status", orderHandler.UpdateOrderStatus)
	admin.GET("/dashboard", orderHandler.GetDashboard)

	return r
}

// setupFavouriteRouter sets up routes for favourite handler tests.
func setupFavouriteRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	favouriteHandler := &FavouriteHandler{DB: db}

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	protected.GET("/favourites", favouriteHandler.GetFavourites)
	protected.POST("/favourites", favouriteHandler.AddFavourite)
	protected.DELETE("/favourites/:productId", favouriteHandler.RemoveFavourite)

	return r
}

// setupCouponRouter sets up routes for coupon handler tests.
func setupCouponRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LocaleMiddleware())
	couponHandler := &CouponHandler{DB: db}

	api := r.Group("/api")
	api.GET("/coupons/:code", couponHandler.PreviewCoupon)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/coupons", couponHandler.ListCoupons)
	admin.POST("/coupons", couponHandler.CreateCoupon)
	admin.PUT("/coupons/:id", couponHandler.UpdateCoupon)
	admin.DELETE("/coupons/:id", couponHandler.DeleteCoupon)

	return r
}

// ==================== Request Helpers ====================

// jsonRequest builds a request carrying a JSON-encoded body.
func jsonRequest(method, url string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// authRequest is jsonRequest plus a bearer token.
func authRequest(method, url string, body interface{}, token string) *http.Request {
	req := jsonRequest(method, url, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// ==================== Response Helpers ====================

// parseResponse decodes the recorded body into a generic map. Decode
// failures surface as nil lookups in the assertions that follow.
func parseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

package routes

import (
	"net/http"
	"time"

	"souq-backend/cache"
	"souq-backend/handlers"
	"souq-backend/metrics"
	"souq-backend/middleware"
	"souq-backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func SetupRoutes(r *gin.Engine, db *gorm.DB, store cache.Store) {
	// Services
	categoryService := services.NewCategoryService(db, store)
	attributeService := services.NewAttributeService(db, store)
	catalogService := services.NewCatalogService(db, categoryService, attributeService)

	// Handlers
	authHandler := &handlers.AuthHandler{DB: db}
	categoryHandler := &handlers.CategoryHandler{Categories: categoryService, Attributes: attributeService}
	attributeHandler := &handlers.AttributeHandler{Attributes: attributeService}
	productHandler := &handlers.ProductHandler{DB: db, Catalog: catalogService, Categories: categoryService}
	cartHandler := &handlers.CartHandler{DB: db}
	orderHandler := &handlers.OrderHandler{DB: db}
	favouriteHandler := &handlers.FavouriteHandler{DB: db}
	couponHandler := &handlers.CouponHandler{DB: db}

	r.Use(middleware.LocaleMiddleware())
	r.Use(metrics.Middleware())

	// Login and registration share a stricter limiter than the rest of the
	// API so credential stuffing burns out quickly.
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	api := r.Group("/api")
	{
		api.POST("/auth/register", authLimiter.Middleware(), authHandler.Register)
		api.POST("/auth/login", authLimiter.Middleware(), authHandler.Login)
		api.POST("/auth/refresh", authLimiter.Middleware(), authHandler.Refresh)

		// Browsing needs no account.
		api.GET("/categories", categoryHandler.GetTree)
		api.GET("/categories/path/*path", categoryHandler.ResolvePath)
		api.GET("/categories/:id", categoryHandler.GetCategory)
		api.GET("/categories/:id/breadcrumb", categoryHandler.GetBreadcrumb)
		api.GET("/categories/:id/filters", categoryHandler.GetFilters)

		api.GET("/products", productHandler.GetProducts)
		api.GET("/products/autocomplete", productHandler.Autocomplete)
		api.GET("/products/slug/:slug", productHandler.GetProductBySlug)
		api.GET("/products/:id", productHandler.GetProduct)

		// Coupon validity preview
		api.GET("/coupons/:code", couponHandler.PreviewCoupon)
	}

	// Everything below carries the caller's identity.
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.GET("/auth/profile", authHandler.GetProfile)
		protected.PUT("/auth/profile", authHandler.UpdateProfile)

		protected.GET("/cart", cartHandler.GetCart)
		protected.POST("/cart", cartHandler.AddToCart)
		protected.PUT("/cart/:id", cartHandler.UpdateCartItem)
		protected.DELETE("/cart/:id", cartHandler.RemoveFromCart)
		protected.DELETE("/cart", cartHandler.ClearCart)

		protected.GET("/favourites", favouriteHandler.GetFavourites)
		protected.POST("/favourites", favouriteHandler.AddFavourite)
		protected.DELETE("/favourites/:productId", favouriteHandler.RemoveFavourite)

		protected.POST("/orders", orderHandler.CreateOrder)
		protected.GET("/orders", orderHandler.GetOrders)
		protected.GET("/orders/:id", orderHandler.GetOrder)
		protected.POST("/orders/:id/cancel", orderHandler.CancelOrder)
	}

	// Store management, reachable only with the admin role.
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/categories", categoryHandler.ListCategories)
		admin.POST("/categories", categoryHandler.CreateCategory)
		admin.PUT("/categories/:id", categoryHandler.UpdateCategory)
		admin.PATCH("/categories/:id/deactivate", categoryHandler.DeactivateCategory)
		admin.PATCH("/categories/:id/activate", categoryHandler.ActivateCategory)
		admin.DELETE("/categories/:id", categoryHandler.DeleteCategory)

		admin.GET("/category-attributes/:categoryId", attributeHandler.GetDefinitions)
		admin.PUT("/category-attributes/:categoryId", attributeHandler.PutDefinitions)
		admin.DELETE("/category-attributes/:categoryId", attributeHandler.DeleteDefinitions)

		admin.GET("/products", productHandler.GetProductsAdmin)
		admin.POST("/products", productHandler.CreateProduct)
		admin.PUT("/products/:id", productHandler.UpdateProduct)
		admin.DELETE("/products/:id", productHandler.DeleteProduct)
		admin.POST("/products/import", productHandler.ImportProducts)
		admin.GET("/products/import/:id", productHandler.GetImportStatus)

		admin.GET("/coupons", couponHandler.ListCoupons)
		admin.POST("/coupons", couponHandler.CreateCoupon)
		admin.PUT("/coupons/:id", couponHandler.UpdateCoupon)
		admin.DELETE("/coupons/:id", couponHandler.DeleteCoupon)

		admin.GET("/orders", orderHandler.ListOrders)
		admin.PUT("/orders/:id/status", orderHandler.UpdateOrderStatus)

		admin.GET("/users", authHandler.ListUsers)
		admin.PATCH("/users/:id/block", authHandler.BlockUser)

		admin.GET("/dashboard", orderHandler.GetDashboard)
	}

	// Liveness and scrape endpoints live outside the /api prefix.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

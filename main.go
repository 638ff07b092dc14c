package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"souq-backend/cache"
	"souq-backend/config"
	"souq-backend/database"
	"souq-backend/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatal("Could not load environment: ", err)
	}
	if err := config.ValidateEnv(); err != nil {
		log.Fatal("Bad configuration: ", err)
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatal("Database connection failed: ", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Schema migration failed: ", err)
	}
	if err := database.CreateDefaultAdmin(db); err != nil {
		log.Printf("Admin seed skipped: %v", err)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	routes.SetupRoutes(r, db, cacheStore())

	srv := &http.Server{
		Addr:    ":" + config.GetEnv("PORT", "8080"),
		Handler: r,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server: %v", err)
		}
	}()

	// Block until asked to stop, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Shutdown deadline exceeded: ", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Closing database: %v", err)
		}
	}

	log.Println("Server stopped")
}

// cacheStore picks redis when REDIS_ADDR is set. Without it every instance
// keeps its own in-memory tree cache, which is fine for a single node.
func cacheStore() cache.Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return cache.NewMemory()
	}

	store, err := cache.NewRedis(addr, os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		log.Printf("WARNING: redis unreachable (%v), falling back to in-memory cache", err)
		return cache.NewMemory()
	}
	log.Printf("Using redis cache at %s", addr)
	return store
}

// corsOrigins collects the configured frontend origins, defaulting to the
// local dev server when none are set.
func corsOrigins() []string {
	var origins []string
	for _, key := range []string{"FRONTEND_URL", "ADMIN_URL"} {
		if v := os.Getenv(key); v != "" {
			origins = append(origins, v)
		}
	}
	if len(origins) == 0 {
		log.Println("No CORS origins configured, allowing http://localhost:3000 only")
		return []string{"http://localhost:3000"}
	}
	return origins
}

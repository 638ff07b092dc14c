package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"souq-backend/config"
	"souq-backend/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the database selected by DB_DRIVER (postgres by default;
// mysql and sqlite are supported for development setups).
func Connect() (*gorm.DB, error) {
	driver := config.GetEnv("DB_DRIVER", "postgres")
	dsn := os.Getenv("DATABASE_URL")

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		if dsn == "" {
			dsn = "host=localhost user=postgres password=postgres dbname=souq_store port=5432 sslmode=disable"
		}
		dialector = postgres.Open(dsn)
	case "mysql":
		if dsn == "" {
			dsn = "root:root@tcp(localhost:3306)/souq_store?charset=utf8mb4&parseTime=True&loc=Local"
		}
		dialector = mysql.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "souq.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		// Ensure PostgreSQL has gen_random_uuid() available (pgcrypto extension).
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
			return fmt.Errorf("failed to enable pgcrypto extension: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.CategoryAttributeSet{},
		&models.Product{},
		&models.CartItem{},
		&models.Favourite{},
		&models.Coupon{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		return err
	}

	return ensureSearchIndexes(db)
}

// ensureSearchIndexes creates the indexes AutoMigrate cannot express. The
// full-text index backs relevance-ranked search and only exists on postgres;
// other dialects fall back to LIKE matching at query time.
func ensureSearchIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_products_browse
		ON products (category_id, is_active, stock_quantity);
	`).Error; err != nil {
		return fmt.Errorf("failed to create browse index: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_products_search
		ON products USING GIN (
			to_tsvector('simple', coalesce(name, '') || ' ' || coalesce(description, ''))
		);
	`).Error; err != nil {
		return fmt.Errorf("failed to create full-text index: %w", err)
	}

	return nil
}

// CreateDefaultAdmin seeds the account the dashboard logs in with.
// Credentials come from ADMIN_EMAIL/ADMIN_PASSWORD; the defaults are for
// development only.
func CreateDefaultAdmin(db *gorm.DB) error {
	email := config.GetEnv("ADMIN_EMAIL", "admin@souq.local")
	password := config.GetEnv("ADMIN_PASSWORD", "admin123")

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Email:    email,
		Password: string(hash),
		Role:     "admin",
		Name:     "Admin User",
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Default admin created: %s", email)
	return nil
}

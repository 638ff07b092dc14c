package database

import (
	"os"
	"testing"

	"souq-backend/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openTestDB builds the two tables these tests touch with raw DDL; the
// model tags carry PostgreSQL defaults that sqlite cannot evaluate.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS "users" (
			"id" TEXT PRIMARY KEY, "email" TEXT NOT NULL UNIQUE, "password" TEXT NOT NULL,
			"name" TEXT, "role" TEXT DEFAULT 'customer', "phone" TEXT,
			"is_blocked" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS "products" (
			"id" TEXT PRIMARY KEY, "name" TEXT NOT NULL, "name_ar" TEXT,
			"slug" TEXT NOT NULL UNIQUE, "description" TEXT, "price" REAL NOT NULL,
			"compare_at_price" REAL, "category_id" TEXT NOT NULL, "attributes" TEXT,
			"stock_quantity" INTEGER DEFAULT 0, "is_active" INTEGER NOT NULL DEFAULT 1,
			"is_featured" INTEGER DEFAULT 0, "is_sponsored" INTEGER DEFAULT 0,
			"view_count" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME
		)`,
	} {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestCreateDefaultAdminSeedsUser(t *testing.T) {
	db := openTestDB(t)
	t.Setenv("ADMIN_EMAIL", "ops@souq.example")
	t.Setenv("ADMIN_PASSWORD", "seeded-admin-pass")

	if err := CreateDefaultAdmin(db); err != nil {
		t.Fatal(err)
	}

	var user models.User
	if err := db.Where("email = ?", "ops@souq.example").First(&user).Error; err != nil {
		t.Fatalf("admin lookup after seeding: %v", err)
	}
	if user.Role != "admin" {
		t.Errorf("seeded role = %q, want %q", user.Role, "admin")
	}
}

func TestCreateDefaultAdminPasswordHashed(t *testing.T) {
	db := openTestDB(t)
	t.Setenv("ADMIN_EMAIL", "hashed@souq.example")
	t.Setenv("ADMIN_PASSWORD", "supersecret1")

	if err := CreateDefaultAdmin(db); err != nil {
		t.Fatal(err)
	}

	var user models.User
	db.Where("email = ?", "hashed@souq.example").First(&user)
	if user.Password == "supersecret1" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("supersecret1")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestCreateDefaultAdminIdempotent(t *testing.T) {
	db := openTestDB(t)
	t.Setenv("ADMIN_EMAIL", "repeat@souq.example")
	t.Setenv("ADMIN_PASSWORD", "password123")

	if err := CreateDefaultAdmin(db); err != nil {
		t.Fatal(err)
	}
	if err := CreateDefaultAdmin(db); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&models.User{}).Where("email = ?", "repeat@souq.example").Count(&count)
	if count != 1 {
		t.Errorf("admin rows after double seed = %d, want 1", count)
	}
}

func TestCreateDefaultAdminFallbackCredentials(t *testing.T) {
	db := openTestDB(t)
	os.Unsetenv("ADMIN_EMAIL")
	os.Unsetenv("ADMIN_PASSWORD")

	if err := CreateDefaultAdmin(db); err != nil {
		t.Fatal(err)
	}

	var user models.User
	if err := db.Where("email = ?", "admin@souq.local").First(&user).Error; err != nil {
		t.Fatal("default admin not created")
	}
}

func TestEnsureSearchIndexesSQLite(t *testing.T) {
	db := openTestDB(t)

	// On sqlite only the composite browse index is created; the full-text
	// index is postgres-only and must be skipped without error.
	if err := ensureSearchIndexes(db); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_products_browse'`).Scan(&count)
	if count != 1 {
		t.Errorf("expected browse index to exist, found %d", count)
	}
}

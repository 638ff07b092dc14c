package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"souq-backend/dtos"
	"souq-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// waitForJob polls the status endpoint until the job settles or the deadline
// passes. Polling only touches the in-memory job store, so it never competes
// with the import workers for the database connection.
func waitForJob(t *testing.T, r *gin.Engine, token, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authRequest("GET", "/api/admin/products/import/"+jobID, nil, token))
		if w.Code != http.StatusOK {
			t.Fatalf("status poll failed: %d: %s", w.Code, w.Body.String())
		}
		job := parseResponse(w)
		if status := job["status"]; status == dtos.JobStatusCompleted || status == dtos.JobStatusFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for import job")
	return nil
}

func startImport(t *testing.T, r *gin.Engine, token string, body map[string]interface{}) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authRequest("POST", "/api/admin/products/import", body, token))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	jobID, ok := resp["job_id"].(string)
	if !ok || jobID == "" {
		t.Fatalf("expected job_id in response, got %v", resp)
	}
	return jobID
}

func TestImportCreatesProducts(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	cat := seedCategory(db, "Electronics", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authRequest("POST", "/api/admin/products/import", map[string]interface{}{
		"products": []map[string]interface{}{
			{"name": "Laptop Pro", "price": 999.00, "category_id": cat.ID.String(), "stock_quantity": 10},
			{"name": "Laptop Air", "price": 799.00, "category_id": cat.ID.String(), "stock_quantity": 5},
		},
	}, adminToken))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	if resp["status"] != dtos.JobStatusPending {
		t.Errorf("expected status pending, got %v", resp["status"])
	}
	if resp["total"].(float64) != 2 {
		t.Errorf("expected total 2, got %v", resp["total"])
	}

	job := waitForJob(t, r, adminToken, resp["job_id"].(string))
	if job["status"] != dtos.JobStatusCompleted {
		t.Fatalf("expected completed job, got %v", job)
	}
	if job["created"].(float64) != 2 {
		t.Errorf("expected 2 created, got %v", job["created"])
	}
	if job["progress"].(float64) != 100 {
		t.Errorf("expected progress 100, got %v", job["progress"])
	}

	var count int64
	db.Model(&models.Product{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 products in database, got %d", count)
	}
	var prod models.Product
	if err := db.Where("slug = ?", "laptop-pro").First(&prod).Error; err != nil {
		t.Fatalf("imported product not found by slug: %v", err)
	}
	if !prod.IsActive {
		t.Error("expected imported product active by default")
	}
}

func TestImportMatchesExistingByName(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	cat := seedCategory(db, "Electronics", nil)
	existing := seedProduct(db, "Laptop Pro", cat.ID, 999.00)

	jobID := startImport(t, r, adminToken, map[string]interface{}{
		"products": []map[string]interface{}{
			{"name": "Laptop Pro", "price": 899.00, "category_id": cat.ID.String(), "stock_quantity": 20},
		},
	})

	job := waitForJob(t, r, adminToken, jobID)
	if job["updated"].(float64) != 1 || job["created"].(float64) != 0 {
		t.Fatalf("expected 1 updated / 0 created, got %v", job)
	}

	var count int64
	db.Model(&models.Product{}).Count(&count)
	if count != 1 {
		t.Errorf("expected re-import not to duplicate, got %d products", count)
	}
	var reloaded models.Product
	db.First(&reloaded, "id = ?", existing.ID)
	if reloaded.Price != 899.00 {
		t.Errorf("expected price updated to 899, got %v", reloaded.Price)
	}
	if reloaded.Slug != "laptop-pro" {
		t.Errorf("expected slug unchanged, got %s", reloaded.Slug)
	}
}

func TestImportUpdatesByExplicitID(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	cat := seedCategory(db, "Electronics", nil)
	existing := seedProduct(db, "Old Name", cat.ID, 100.00)

	jobID := startImport(t, r, adminToken, map[string]interface{}{
		"products": []map[string]interface{}{
			{"id": existing.ID.String(), "name": "New Name", "price": 120.00, "category_id": cat.ID.String()},
		},
	})

	job := waitForJob(t, r, adminToken, jobID)
	if job["updated"].(float64) != 1 {
		t.Fatalf("expected 1 updated, got %v", job)
	}

	var reloaded models.Product
	db.First(&reloaded, "id = ?", existing.ID)
	if reloaded.Name != "New Name" {
		t.Errorf("expected renamed product, got %s", reloaded.Name)
	}
	// Updates keep the existing slug even when the name changes.
	if reloaded.Slug != "old-name" {
		t.Errorf("expected slug kept on update, got %s", reloaded.Slug)
	}
}

func TestImportUnknownExplicitIDCreates(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	cat := seedCategory(db, "Electronics", nil)

	jobID := startImport(t, r, adminToken, map[string]interface{}{
		"products": []map[string]interface{}{
			{"id": uuid.New().String(), "name": "Fresh", "price": 10.00, "category_id": cat.ID.String()},
		},
	})

	job := waitForJob(t, r, adminToken, jobID)
	if job["created"].(float64) != 1 {
		t.Fatalf("expected unknown id to create, got %v", job)
	}
}

func TestImportRowErrors(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	cat := seedCategory(db, "Electronics", nil)

	jobID := startImport(t, r, adminToken, map[string]interface{}{
		"products": []map[string]interface{}{
			{"name": "Good Row", "price": 10.00, "category_id": cat.ID.String()},
			{"name": "Bad Category", "price": 10.00, "category_id": uuid.New().String()},
			{"name": "Bad Compare", "price": 100.00, "compare_at_price": 50.00, "category_id": cat.ID.String()},
		},
	})

	job := waitForJob(t, r, adminToken, jobID)
	if job["status"] != dtos.JobStatusCompleted {
		t.Fatalf("expected completed job despite row errors, got %v", job["status"])
	}
	if job["created"].(float64) != 1 {
		t.Errorf("expected 1 created, got %v", job["created"])
	}
	if job["failed"].(float64) != 2 {
		t.Errorf("expected 2 failed rows, got %v", job["failed"])
	}

	jobErrors := job["errors"].([]interface{})
	if len(jobErrors) != 2 {
		t.Fatalf("expected 2 row errors, got %v", jobErrors)
	}
	rows := map[float64]bool{}
	for _, e := range jobErrors {
		rows[e.(map[string]interface{})["row"].(float64)] = true
	}
	if !rows[2] || !rows[3] {
		t.Errorf("expected errors pinned to rows 2 and 3, got %v", rows)
	}
}

func TestImportPayloadSlugCollision(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	cat := seedCategory(db, "Electronics", nil)

	// Two distinct new products with the same name must both land, with
	// suffixed slugs.
	jobID := startImport(t, r, adminToken, map[string]interface{}{
		"products": []map[string]interface{}{
			{"name": "Laptop", "price": 10.00, "category_id": cat.ID.String(), "description": "first"},
			{"name": "Laptop", "price": 20.00, "category_id": cat.ID.String(), "description": "second"},
		},
	})

	job := waitForJob(t, r, adminToken, jobID)
	if job["created"].(float64)+job["updated"].(float64) != 2 {
		t.Fatalf("expected both rows to land, got %v", job)
	}

	var slugs []string
	db.Model(&models.Product{}).Order("slug asc").Pluck("slug", &slugs)
	if len(slugs) != 2 || slugs[0] != "laptop" || slugs[1] != "laptop-1" {
		t.Errorf("expected slugs laptop and laptop-1, got %v", slugs)
	}
}

func TestImportDeleteMissing(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")
	user, _ := seedTestUser(db, "customer@example.com", "customer")
	cat := seedCategory(db, "Electronics", nil)
	kept := seedProduct(db, "Kept", cat.ID, 10.00)
	absent := seedProduct(db, "Absent", cat.ID, 20.00)
	ordered := seedProduct(db, "Ordered", cat.ID, 30.00)
	seedOrder(db, user.ID, ordered.ID, models.OrderStatusDelivered)

	jobID := startImport(t, r, adminToken, map[string]interface{}{
		"products": []map[string]interface{}{
			{"name": "Kept", "price": 15.00, "category_id": cat.ID.String()},
		},
		"delete_missing": true,
	})

	job := waitForJob(t, r, adminToken, jobID)
	if job["deleted"].(float64) != 1 {
		t.Fatalf("expected 1 deleted, got %v", job)
	}

	var keptCount, absentCount, orderedCount int64
	db.Model(&models.Product{}).Where("id = ?", kept.ID).Count(&keptCount)
	db.Model(&models.Product{}).Where("id = ?", absent.ID).Count(&absentCount)
	db.Model(&models.Product{}).Where("id = ?", ordered.ID).Count(&orderedCount)
	if keptCount != 1 {
		t.Error("expected imported product kept")
	}
	if absentCount != 0 {
		t.Error("expected missing product deleted")
	}
	// Products referenced by orders survive a delete-missing sweep.
	if orderedCount != 1 {
		t.Error("expected order-referenced product kept")
	}
}

func TestImportRejectsEmptyPayload(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authRequest("POST", "/api/admin/products/import", map[string]interface{}{
		"products": []map[string]interface{}{},
	}, adminToken))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestImportStatusUnknownJob(t *testing.T) {
	db := freshDB()
	r := setupProductRouter(db)
	_, adminToken := seedTestUser(db, "admin@example.com", "admin")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authRequest("GET", "/api/admin/products/import/"+uuid.New().String(), nil, adminToken))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
	if key := parseResponse(w)["key"]; key != "product.importNotFound" {
		t.Errorf("expected key product.importNotFound, got %v", key)
	}
}

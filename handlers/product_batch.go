package handlers

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"souq-backend/apperr"
	"souq-backend/dtos"
	"souq-backend/models"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ImportProducts accepts a bulk product payload and processes it in the
// background. The response carries a job id the client polls for progress.
func (h *ProductHandler) ImportProducts(c *gin.Context) {
	var req dtos.ProductImportRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	job := utils.Store.CreateJob(len(req.Products))

	go h.processImport(job.ID, req.Products, req.DeleteMissing)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID.String(),
		"status": job.Status,
		"total":  job.Total,
	})
}

func (h *ProductHandler) GetImportStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "product.importNotFound")
	if !ok {
		return
	}

	job, exists := utils.Store.GetJob(id)
	if !exists {
		respondError(c, apperr.NotFound("product.importNotFound"))
		return
	}

	c.JSON(http.StatusOK, job)
}

// processImport runs an import job: concurrent row preparation, serial slug
// assignment, then bulk writes. Existing products are matched by explicit id
// or by the slug derived from the row's name.
func (h *ProductHandler) processImport(jobID uuid.UUID, items []dtos.ProductImportItem, deleteMissing bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Import job %s panicked: %v", jobID, r)
			utils.Store.CompleteJob(jobID, dtos.JobStatusFailed)
		}
	}()

	utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
		j.Status = dtos.JobStatusProcessing
	})

	categories := h.loadCategoryIDs()
	existingByID, existingBySlug := h.loadExistingProducts(items)

	type pendingCreate struct {
		row     int
		name    string
		base    string
		product models.Product
	}

	var (
		mu               sync.Mutex
		pendingCreates   []pendingCreate
		productsToUpdate []models.Product
		importedIDs      = make(map[uuid.UUID]bool)
		processed        int
	)

	const maxConcurrent = 5
	semaphore := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	total := len(items)

	for i, item := range items {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(idx int, data dtos.ProductImportItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			product, isNew, err := h.prepareImportItem(data, categories, existingByID, existingBySlug)

			mu.Lock()
			defer mu.Unlock()

			processed++
			progress := processed * 85 / total
			utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
				j.Processed = processed
				j.Progress = progress
			})

			if err != nil {
				utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
					j.Failed++
					j.Errors = append(j.Errors, dtos.JobError{
						Row:     idx + 1,
						Product: data.Name,
						Fields:  map[string]string{"error": err.Error()},
					})
				})
				return
			}

			if isNew {
				pendingCreates = append(pendingCreates, pendingCreate{
					row:     idx + 1,
					name:    data.Name,
					base:    utils.Slugify(data.Name),
					product: product,
				})
			} else {
				productsToUpdate = append(productsToUpdate, product)
				importedIDs[product.ID] = true
				utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
					j.Updated++
				})
			}
		}(i, item)
	}

	wg.Wait()

	utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
		j.Progress = 85
	})

	// Slugs are assigned serially so rows inside one payload cannot race
	// each other for the same free slug.
	var productsToCreate []models.Product
	assigned := make(map[string]bool)
	for _, pending := range pendingCreates {
		slug, err := h.claimImportSlug(pending.base, assigned)
		if err != nil {
			utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
				j.Failed++
				j.Errors = append(j.Errors, dtos.JobError{
					Row:     pending.row,
					Product: pending.name,
					Fields:  map[string]string{"slug": err.Error()},
				})
			})
			continue
		}
		pending.product.Slug = slug
		assigned[slug] = true
		productsToCreate = append(productsToCreate, pending.product)
		importedIDs[pending.product.ID] = true
		utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
			j.Created++
		})
	}

	if len(productsToCreate) > 0 {
		if err := h.DB.CreateInBatches(&productsToCreate, 100).Error; err != nil {
			log.Printf("Import %s: insert of %d new products failed: %v", jobID, len(productsToCreate), err)
		} else {
			log.Printf("Import %s: inserted %d new products", jobID, len(productsToCreate))
		}
	}

	utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
		j.Progress = 88
	})

	if len(productsToUpdate) > 0 {
		if err := h.DB.Save(&productsToUpdate).Error; err != nil {
			log.Printf("Import %s: update of %d products failed: %v", jobID, len(productsToUpdate), err)
		} else {
			log.Printf("Import %s: updated %d products", jobID, len(productsToUpdate))
		}
	}

	utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
		j.Progress = 90
	})

	if deleteMissing {
		h.deleteProductsNotInImport(jobID, importedIDs)
	}

	utils.Store.CompleteJob(jobID, dtos.JobStatusCompleted)
}

// prepareImportItem validates one row and maps it onto either a fresh
// product or a copy of the matched existing one. New products get their id
// here; their slug is assigned later.
func (h *ProductHandler) prepareImportItem(
	item dtos.ProductImportItem,
	categories map[uuid.UUID]bool,
	existingByID map[uuid.UUID]models.Product,
	existingBySlug map[string]models.Product,
) (models.Product, bool, error) {
	categoryID, err := uuid.Parse(item.CategoryID)
	if err != nil {
		return models.Product{}, false, fmt.Errorf("invalid category ID format")
	}
	if !categories[categoryID] {
		return models.Product{}, false, fmt.Errorf("category not found")
	}

	if item.CompareAtPrice != nil && *item.CompareAtPrice < item.Price {
		return models.Product{}, false, fmt.Errorf("compare_at_price is below price")
	}

	var product models.Product
	if item.ID != nil && *item.ID != "" {
		productID, err := uuid.Parse(*item.ID)
		if err != nil {
			return models.Product{}, false, fmt.Errorf("invalid product ID format")
		}
		if existing, ok := existingByID[productID]; ok {
			product = existing
		}
	} else if existing, ok := existingBySlug[utils.Slugify(item.Name)]; ok {
		product = existing
	}

	isNew := product.CreatedAt.IsZero()
	if isNew {
		product.ID = uuid.New()
		product.IsActive = true
	}

	product.Name = item.Name
	product.NameAr = item.NameAr
	product.Description = item.Description
	product.Price = item.Price
	product.CompareAtPrice = item.CompareAtPrice
	product.CategoryID = categoryID
	product.Attributes = item.Attributes
	product.StockQuantity = item.StockQuantity
	product.IsFeatured = item.IsFeatured
	product.IsSponsored = item.IsSponsored
	if item.IsActive != nil {
		product.IsActive = *item.IsActive
	}

	return product, isNew, nil
}

func (h *ProductHandler) loadCategoryIDs() map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool)
	var categories []models.Category
	if err := h.DB.Find(&categories).Error; err != nil {
		log.Printf("Error loading categories for import: %v", err)
		return ids
	}
	for _, category := range categories {
		ids[category.ID] = true
	}
	return ids
}

// loadExistingProducts bulk-fetches every product an import row could match:
// explicit ids and the slugs derived from row names.
func (h *ProductHandler) loadExistingProducts(items []dtos.ProductImportItem) (map[uuid.UUID]models.Product, map[string]models.Product) {
	byID := make(map[uuid.UUID]models.Product)
	bySlug := make(map[string]models.Product)

	var ids []uuid.UUID
	var slugs []string
	for _, item := range items {
		if item.ID != nil && *item.ID != "" {
			if id, err := uuid.Parse(*item.ID); err == nil {
				ids = append(ids, id)
			}
			continue
		}
		if slug := utils.Slugify(item.Name); slug != "" {
			slugs = append(slugs, slug)
		}
	}

	var existing []models.Product
	query := h.DB
	switch {
	case len(ids) > 0 && len(slugs) > 0:
		query = query.Where("id IN ?", ids).Or("slug IN ?", slugs)
	case len(ids) > 0:
		query = query.Where("id IN ?", ids)
	case len(slugs) > 0:
		query = query.Where("slug IN ?", slugs)
	default:
		return byID, bySlug
	}
	if err := query.Find(&existing).Error; err != nil {
		log.Printf("Error loading existing products for import: %v", err)
		return byID, bySlug
	}

	for _, product := range existing {
		byID[product.ID] = product
		bySlug[product.Slug] = product
	}
	return byID, bySlug
}

// claimImportSlug probes for a free slug, skipping slugs already claimed by
// earlier rows of the same payload.
func (h *ProductHandler) claimImportSlug(base string, taken map[string]bool) (string, error) {
	if base == "" {
		base = "product"
	}

	for attempt := 0; attempt < maxProductSlugAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		if taken[candidate] {
			continue
		}
		var count int64
		if err := h.DB.Unscoped().Model(&models.Product{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", fmt.Errorf("slug lookup failed")
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique slug")
}

// deleteProductsNotInImport removes products absent from the import,
// skipping anything referenced by an order so history stays intact.
func (h *ProductHandler) deleteProductsNotInImport(jobID uuid.UUID, importedIDs map[uuid.UUID]bool) {
	var allProducts []models.Product
	if err := h.DB.Find(&allProducts).Error; err != nil {
		log.Printf("Error fetching products for deletion check: %v", err)
		return
	}

	var candidates []models.Product
	var candidateIDs []uuid.UUID
	for _, product := range allProducts {
		if !importedIDs[product.ID] {
			candidates = append(candidates, product)
			candidateIDs = append(candidateIDs, product.ID)
		}
	}

	if len(candidateIDs) == 0 {
		return
	}

	var orderCounts []dtos.ProductOrderCount
	err := h.DB.Model(&models.OrderItem{}).
		Select("product_id as product_id, COUNT(*) as count").
		Where("product_id IN ?", candidateIDs).
		Group("product_id").
		Scan(&orderCounts).Error
	if err != nil {
		log.Printf("Error fetching order counts: %v", err)
		return
	}

	referenced := make(map[uuid.UUID]bool)
	for _, oc := range orderCounts {
		if oc.Count > 0 {
			referenced[oc.ProductID] = true
		}
	}

	var safeIDs []uuid.UUID
	for _, product := range candidates {
		if referenced[product.ID] {
			log.Printf("Skipping deletion of product %q (%s): referenced in orders", product.Name, product.ID)
			continue
		}
		safeIDs = append(safeIDs, product.ID)
	}

	if len(safeIDs) == 0 {
		return
	}

	if err := h.DB.Where("product_id IN ?", safeIDs).Delete(&models.CartItem{}).Error; err != nil {
		log.Printf("Error clearing carts for deleted products: %v", err)
	}
	if err := h.DB.Where("product_id IN ?", safeIDs).Delete(&models.Favourite{}).Error; err != nil {
		log.Printf("Error clearing favourites for deleted products: %v", err)
	}
	if err := h.DB.Where("id IN ?", safeIDs).Delete(&models.Product{}).Error; err != nil {
		log.Printf("Error deleting products not in import: %v", err)
		return
	}

	utils.Store.UpdateJob(jobID, func(j *dtos.BatchJob) {
		j.Deleted += len(safeIDs)
	})
	log.Printf("Import cleanup: deleted %d products, skipped %d (referenced in orders)",
		len(safeIDs), len(candidates)-len(safeIDs))
}

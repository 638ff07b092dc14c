package services

import (
	"errors"
	"fmt"
	"time"

	"souq-backend/apperr"
	"souq-backend/cache"
	"souq-backend/metrics"
	"souq-backend/models"
	"souq-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// catalogCachePrefix namespaces every cached category/filter read so one
	// DelPrefix call invalidates all of them after any write.
	catalogCachePrefix = "categories:"
	treeCacheKey       = "categories:tree"
	catalogCacheTTL    = 5 * time.Minute

	maxSlugAttempts = 100
)

// CategoryService owns the category tree: path resolution, breadcrumbs,
// subtree walks, and all writes with cycle prevention and slug generation.
type CategoryService struct {
	DB    *gorm.DB
	Cache cache.Store
}

func NewCategoryService(db *gorm.DB, store cache.Store) *CategoryService {
	return &CategoryService{DB: db, Cache: store}
}

// BreadcrumbEntry is one step in a root-first breadcrumb trail.
type BreadcrumbEntry struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	NameAr string    `json:"name_ar,omitempty"`
	Slug   string    `json:"slug"`
}

// PathResolution is the result of resolving a nested slug path like
// "electronics/laptops". Children contains the active direct children;
// IsLeaf reports whether there are none.
type PathResolution struct {
	Category   models.Category   `json:"category"`
	Children   []models.Category `json:"children"`
	Breadcrumb []BreadcrumbEntry `json:"breadcrumb"`
	IsLeaf     bool              `json:"is_leaf"`
}

// CategoryInput carries the writable category fields. Update treats it as a
// full replacement of name, localized name, parent and sort order; activation
// is handled exclusively by Activate/Deactivate so the cascade cannot be
// bypassed.
type CategoryInput struct {
	Name      string
	NameAr    string
	ParentID  *uuid.UUID
	SortOrder int
	IsActive  *bool // honored on create only
}

// ResolvePath walks slug segments root to leaf. Each step must find exactly
// one active category with that slug under the current parent; an empty path
// or any broken link resolves to NotFound.
func (s *CategoryService) ResolvePath(segments []string) (*PathResolution, error) {
	if len(segments) == 0 {
		return nil, apperr.NotFound("category.categoryNotFound")
	}

	var current models.Category
	var parentID *uuid.UUID
	for _, segment := range segments {
		query := s.DB.Where("slug = ? AND is_active = ?", segment, true)
		if parentID == nil {
			query = query.Where("parent_id IS NULL")
		} else {
			query = query.Where("parent_id = ?", *parentID)
		}
		current = models.Category{}
		if err := query.First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("category.categoryNotFound")
			}
			return nil, apperr.Internal("common.internalError", err)
		}
		id := current.ID
		parentID = &id
	}

	children, err := s.activeChildren(current.ID)
	if err != nil {
		return nil, err
	}
	breadcrumb, err := s.Breadcrumb(current.ID)
	if err != nil {
		return nil, err
	}

	return &PathResolution{
		Category:   current,
		Children:   children,
		Breadcrumb: breadcrumb,
		IsLeaf:     len(children) == 0,
	}, nil
}

// Breadcrumb walks parent pointers upward from the category and returns the
// trail root-first. The walk cannot cycle because every write validates the
// parent chain.
func (s *CategoryService) Breadcrumb(categoryID uuid.UUID) ([]BreadcrumbEntry, error) {
	var node models.Category
	if err := s.DB.First(&node, "id = ?", categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category.categoryNotFound")
		}
		return nil, apperr.Internal("common.internalError", err)
	}

	entries := []BreadcrumbEntry{{ID: node.ID, Name: node.Name, NameAr: node.NameAr, Slug: node.Slug}}
	for node.ParentID != nil {
		var parent models.Category
		if err := s.DB.First(&parent, "id = ?", *node.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, apperr.Internal("common.internalError", err)
		}
		entries = append(entries, BreadcrumbEntry{ID: parent.ID, Name: parent.Name, NameAr: parent.NameAr, Slug: parent.Slug})
		node = parent
	}

	// walked leaf to root, flip to root-first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// SubtreeIDs returns the category and every descendant, found by iterative
// frontier descent over parent_id. The root id is always first. Existence is
// not checked: an unknown id yields just itself, which filters to an empty
// result wherever it is used.
func (s *CategoryService) SubtreeIDs(categoryID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{categoryID}
	frontier := []uuid.UUID{categoryID}
	for len(frontier) > 0 {
		var children []models.Category
		if err := s.DB.Select("id").Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
			return nil, apperr.Internal("common.internalError", err)
		}
		frontier = nil
		for _, child := range children {
			ids = append(ids, child.ID)
			frontier = append(frontier, child.ID)
		}
	}
	return ids, nil
}

// Tree returns the active category tree nested root-first, cached for a few
// minutes. Writes invalidate the whole catalog namespace.
func (s *CategoryService) Tree() ([]models.Category, error) {
	var cached []models.Category
	if s.Cache != nil && s.Cache.Get(treeCacheKey, &cached) {
		metrics.CacheHits.WithLabelValues("tree").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("tree").Inc()

	var all []models.Category
	if err := s.DB.Where("is_active = ?", true).Order("sort_order asc, name asc").Find(&all).Error; err != nil {
		return nil, apperr.Internal("common.internalError", err)
	}
	tree := buildTree(all)

	if s.Cache != nil {
		s.Cache.Set(treeCacheKey, tree, catalogCacheTTL)
	}
	return tree, nil
}

// ListAll returns every category flat, including inactive ones, for admin
// listings.
func (s *CategoryService) ListAll() ([]models.Category, error) {
	var all []models.Category
	if err := s.DB.Order("sort_order asc, name asc").Find(&all).Error; err != nil {
		return nil, apperr.Internal("common.internalError", err)
	}
	return all, nil
}

func (s *CategoryService) Get(id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := s.DB.First(&category, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category.categoryNotFound")
		}
		return nil, apperr.Internal("common.internalError", err)
	}
	return &category, nil
}

func (s *CategoryService) Create(input CategoryInput) (*models.Category, error) {
	if input.ParentID != nil {
		if err := s.mustExist(*input.ParentID, "category.parentNotFound"); err != nil {
			return nil, err
		}
	}

	slug, err := s.uniqueSlug(input.Name, nil)
	if err != nil {
		return nil, err
	}

	category := models.Category{
		Name:      input.Name,
		NameAr:    input.NameAr,
		Slug:      slug,
		ParentID:  input.ParentID,
		SortOrder: input.SortOrder,
		IsActive:  true,
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}

	if err := s.DB.Create(&category).Error; err != nil {
		if IsDuplicateKey(err) {
			return nil, apperr.Conflict("category.slugTaken")
		}
		return nil, apperr.Internal("common.internalError", err)
	}

	s.invalidate()
	return &category, nil
}

// Update replaces name, localized name, parent and sort order. A changed
// name regenerates the slug. Re-parenting rejects the category itself and
// anything inside its own subtree, and additionally walks the candidate
// parent's ancestor chain so a concurrent move cannot sneak a cycle past the
// subtree check.
func (s *CategoryService) Update(id uuid.UUID, input CategoryInput) (*models.Category, error) {
	var category models.Category
	if err := s.DB.First(&category, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category.categoryNotFound")
		}
		return nil, apperr.Internal("common.internalError", err)
	}

	parentChanged := !uuidPtrEqual(input.ParentID, category.ParentID)
	if input.ParentID != nil && parentChanged {
		newParent := *input.ParentID
		if newParent == id {
			return nil, apperr.Conflict("category.cycleDetected")
		}
		if err := s.mustExist(newParent, "category.parentNotFound"); err != nil {
			return nil, err
		}
		descendants, err := s.SubtreeIDs(id)
		if err != nil {
			return nil, err
		}
		for _, d := range descendants {
			if d == newParent {
				return nil, apperr.Conflict("category.cycleDetected")
			}
		}
		if err := s.ancestorChainExcludes(newParent, id); err != nil {
			return nil, err
		}
	}

	if input.Name != category.Name {
		newSlug, err := s.uniqueSlug(input.Name, &id)
		if err != nil {
			return nil, err
		}
		category.Slug = newSlug
	}
	category.Name = input.Name
	category.NameAr = input.NameAr
	category.ParentID = input.ParentID
	category.SortOrder = input.SortOrder

	if err := s.DB.Save(&category).Error; err != nil {
		if IsDuplicateKey(err) {
			return nil, apperr.Conflict("category.slugTaken")
		}
		return nil, apperr.Internal("common.internalError", err)
	}

	s.invalidate()
	return &category, nil
}

// Deactivate hides the category and cascades to every descendant in one
// batched update, so no subtree is ever left half-visible.
func (s *CategoryService) Deactivate(id uuid.UUID) error {
	if err := s.mustExist(id, "category.categoryNotFound"); err != nil {
		return err
	}
	ids, err := s.SubtreeIDs(id)
	if err != nil {
		return err
	}
	if err := s.DB.Model(&models.Category{}).Where("id IN ?", ids).Update("is_active", false).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	s.invalidate()
	return nil
}

// Activate re-enables a single category. Descendants deactivated earlier
// stay as they are; reactivation is deliberately not cascading.
func (s *CategoryService) Activate(id uuid.UUID) error {
	if err := s.mustExist(id, "category.categoryNotFound"); err != nil {
		return err
	}
	if err := s.DB.Model(&models.Category{}).Where("id = ?", id).Update("is_active", true).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	s.invalidate()
	return nil
}

// Delete removes a category that has no children and no products. Its
// attribute definitions go with it.
func (s *CategoryService) Delete(id uuid.UUID) error {
	if err := s.mustExist(id, "category.categoryNotFound"); err != nil {
		return err
	}

	var childCount int64
	if err := s.DB.Model(&models.Category{}).Where("parent_id = ?", id).Count(&childCount).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	if childCount > 0 {
		return apperr.Conflict("category.hasChildren")
	}

	var productCount int64
	if err := s.DB.Model(&models.Product{}).Where("category_id = ?", id).Count(&productCount).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	if productCount > 0 {
		return apperr.Conflict("category.hasProducts")
	}

	if err := s.DB.Delete(&models.Category{}, "id = ?", id).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	if err := s.DB.Where("category_id = ?", id).Delete(&models.CategoryAttributeSet{}).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}

	s.invalidate()
	return nil
}

func (s *CategoryService) activeChildren(parentID uuid.UUID) ([]models.Category, error) {
	var children []models.Category
	err := s.DB.Where("parent_id = ? AND is_active = ?", parentID, true).
		Order("sort_order asc, name asc").
		Find(&children).Error
	if err != nil {
		return nil, apperr.Internal("common.internalError", err)
	}
	return children, nil
}

// uniqueSlug derives a slug from name and probes for a free one: the bare
// base first, then numeric suffixes, giving up after a bounded number of
// attempts. excludeID ignores the category being renamed so an unchanged
// effective slug does not collide with itself. The probe is unscoped because
// soft-deleted rows still hold their slug in the unique index.
func (s *CategoryService) uniqueSlug(name string, excludeID *uuid.UUID) (string, error) {
	base := utils.Slugify(name)
	if base == "" {
		base = "category"
	}

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		var count int64
		query := s.DB.Unscoped().Model(&models.Category{}).Where("slug = ?", candidate)
		if excludeID != nil {
			query = query.Where("id <> ?", *excludeID)
		}
		if err := query.Count(&count).Error; err != nil {
			return "", apperr.Internal("common.internalError", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", apperr.Internal("category.slugGenerationFailed", nil)
}

// ancestorChainExcludes walks up from startID and fails with Conflict if the
// chain ever reaches forbiddenID.
func (s *CategoryService) ancestorChainExcludes(startID, forbiddenID uuid.UUID) error {
	current := startID
	for {
		if current == forbiddenID {
			return apperr.Conflict("category.cycleDetected")
		}
		var node models.Category
		if err := s.DB.Select("id", "parent_id").First(&node, "id = ?", current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return apperr.Internal("common.internalError", err)
		}
		if node.ParentID == nil {
			return nil
		}
		current = *node.ParentID
	}
}

func (s *CategoryService) mustExist(id uuid.UUID, key string) error {
	var count int64
	if err := s.DB.Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	if count == 0 {
		return apperr.NotFound(key)
	}
	return nil
}

func (s *CategoryService) invalidate() {
	if s.Cache != nil {
		s.Cache.DelPrefix(catalogCachePrefix)
	}
}

func buildTree(nodes []models.Category) []models.Category {
	childrenByParent := make(map[uuid.UUID][]models.Category)
	for _, node := range nodes {
		if node.ParentID != nil {
			childrenByParent[*node.ParentID] = append(childrenByParent[*node.ParentID], node)
		}
	}

	var attach func(node *models.Category)
	attach = func(node *models.Category) {
		kids := childrenByParent[node.ID]
		for i := range kids {
			attach(&kids[i])
		}
		node.Children = kids
	}

	roots := []models.Category{}
	for _, node := range nodes {
		if node.ParentID == nil {
			attach(&node)
			roots = append(roots, node)
		}
	}
	return roots
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

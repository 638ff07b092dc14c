package services

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"souq-backend/apperr"
	"souq-backend/cache"
	"souq-backend/metrics"
	"souq-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const filtersCachePrefix = "categories:filters:"

var attributeKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// AttributeService manages per-category attribute definitions and resolves
// the effective filter schema a category inherits from its ancestors.
type AttributeService struct {
	DB    *gorm.DB
	Cache cache.Store
}

func NewAttributeService(db *gorm.DB, store cache.Store) *AttributeService {
	return &AttributeService{DB: db, Cache: store}
}

// EffectiveFilters merges attribute definitions along the ancestor chain,
// root first, with closer categories overriding by key. Only filterable
// definitions survive the merge; the result is sorted by display order.
// The ancestor sets are fetched in one batched read.
func (s *AttributeService) EffectiveFilters(categoryID uuid.UUID) ([]models.AttributeDefinition, error) {
	cacheKey := filtersCachePrefix + categoryID.String()
	var cached []models.AttributeDefinition
	if s.Cache != nil && s.Cache.Get(cacheKey, &cached) {
		metrics.CacheHits.WithLabelValues("filters").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("filters").Inc()

	chain, err := s.ancestorChain(categoryID)
	if err != nil {
		return nil, err
	}

	var sets []models.CategoryAttributeSet
	if err := s.DB.Where("category_id IN ?", chain).Find(&sets).Error; err != nil {
		return nil, apperr.Internal("common.internalError", err)
	}
	setsByCategory := make(map[uuid.UUID]models.AttributeDefinitionList, len(sets))
	for _, set := range sets {
		setsByCategory[set.CategoryID] = set.Definitions
	}

	merged := make(map[string]models.AttributeDefinition)
	for _, id := range chain {
		for _, def := range setsByCategory[id] {
			merged[def.Key] = def
		}
	}

	effective := []models.AttributeDefinition{}
	for _, def := range merged {
		if def.Filterable {
			effective = append(effective, def)
		}
	}
	sort.SliceStable(effective, func(i, j int) bool {
		if effective[i].SortOrder != effective[j].SortOrder {
			return effective[i].SortOrder < effective[j].SortOrder
		}
		return effective[i].Key < effective[j].Key
	})

	if s.Cache != nil {
		s.Cache.Set(cacheKey, effective, catalogCacheTTL)
	}
	return effective, nil
}

// RawDefinitions returns the definitions declared directly on the category,
// without inheritance. A category with no stored set has an empty list.
func (s *AttributeService) RawDefinitions(categoryID uuid.UUID) (models.AttributeDefinitionList, error) {
	if err := s.categoryExists(categoryID); err != nil {
		return nil, err
	}

	var set models.CategoryAttributeSet
	err := s.DB.Where("category_id = ?", categoryID).First(&set).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AttributeDefinitionList{}, nil
		}
		return nil, apperr.Internal("common.internalError", err)
	}
	if set.Definitions == nil {
		return models.AttributeDefinitionList{}, nil
	}
	return set.Definitions, nil
}

// Upsert replaces the category's whole definition list. It never merges with
// the stored list, never touches sibling or descendant categories, and never
// revalidates existing product attribute values.
func (s *AttributeService) Upsert(categoryID uuid.UUID, defs models.AttributeDefinitionList) (models.AttributeDefinitionList, error) {
	if err := s.categoryExists(categoryID); err != nil {
		return nil, err
	}
	if err := validateDefinitions(defs); err != nil {
		return nil, err
	}
	if defs == nil {
		defs = models.AttributeDefinitionList{}
	}

	set := models.CategoryAttributeSet{CategoryID: categoryID, Definitions: defs}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"definitions", "updated_at"}),
	}).Create(&set).Error
	if err != nil {
		return nil, apperr.Internal("common.internalError", err)
	}

	s.invalidate()
	return defs, nil
}

// Delete drops the category's own definition list. Inherited definitions are
// unaffected; deleting an absent list is a no-op.
func (s *AttributeService) Delete(categoryID uuid.UUID) error {
	if err := s.categoryExists(categoryID); err != nil {
		return err
	}
	if err := s.DB.Where("category_id = ?", categoryID).Delete(&models.CategoryAttributeSet{}).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	s.invalidate()
	return nil
}

// ancestorChain returns category ids from the root down to categoryID.
func (s *AttributeService) ancestorChain(categoryID uuid.UUID) ([]uuid.UUID, error) {
	chain := []uuid.UUID{}
	current := categoryID
	for {
		var node models.Category
		if err := s.DB.Select("id", "parent_id").First(&node, "id = ?", current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if len(chain) == 0 {
					return nil, apperr.NotFound("category.categoryNotFound")
				}
				break // dangling parent pointer, treat the walked part as the chain
			}
			return nil, apperr.Internal("common.internalError", err)
		}
		chain = append(chain, node.ID)
		if node.ParentID == nil {
			break
		}
		current = *node.ParentID
	}

	// walked leaf to root, flip to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *AttributeService) categoryExists(id uuid.UUID) error {
	var count int64
	if err := s.DB.Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperr.Internal("common.internalError", err)
	}
	if count == 0 {
		return apperr.NotFound("category.categoryNotFound")
	}
	return nil
}

func (s *AttributeService) invalidate() {
	if s.Cache != nil {
		s.Cache.DelPrefix(catalogCachePrefix)
	}
}

func validateDefinitions(defs models.AttributeDefinitionList) error {
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		field := fmt.Sprintf("definitions[%d]", i)
		if !attributeKeyPattern.MatchString(def.Key) {
			return apperr.Validation("attribute.invalidKey", map[string]string{field: def.Key})
		}
		if seen[def.Key] {
			return apperr.Validation("attribute.duplicateKey", map[string]string{field: def.Key})
		}
		seen[def.Key] = true

		switch def.Type {
		case models.AttributeSingleSelect, models.AttributeMultiSelect:
			if len(def.Options) == 0 {
				return apperr.Validation("attribute.optionsRequired", map[string]string{field: def.Key})
			}
		case models.AttributeNumericRange:
			if def.Min != nil && def.Max != nil && *def.Min >= *def.Max {
				return apperr.Validation("attribute.invalidRange", map[string]string{field: def.Key})
			}
		default:
			return apperr.Validation("attribute.invalidType", map[string]string{field: string(def.Type)})
		}
	}
	return nil
}

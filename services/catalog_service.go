package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"souq-backend/apperr"
	"souq-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// Queries shorter than this use substring matching; longer ones go
	// through full-text search on postgres.
	minFullTextQueryLen = 3

	maxAutocompleteResults = 10

	defaultQueryTimeout = 5 * time.Second

	// searchVector must stay in sync with the GIN index built in
	// database.ensureSearchIndexes.
	searchVector = "to_tsvector('simple', coalesce(products.name, '') || ' ' || coalesce(products.description, ''))"
)

// CatalogService is the read side of the product catalog: filtered,
// sorted, paginated listings and autocomplete.
type CatalogService struct {
	DB         *gorm.DB
	Categories *CategoryService
	Attributes *AttributeService
	Timeout    time.Duration
}

func NewCatalogService(db *gorm.DB, categories *CategoryService, attributes *AttributeService) *CatalogService {
	return &CatalogService{DB: db, Categories: categories, Attributes: attributes, Timeout: defaultQueryTimeout}
}

// ListParams carries every supported catalog filter. AttributeFilters maps
// attribute keys to raw filter values ("Apple" for selects, "8-16" for
// ranges); keys not present in the category's effective filter schema are
// ignored.
type ListParams struct {
	CategoryID       *uuid.UUID
	IncludeSubtree   bool
	PriceMin         *float64
	PriceMax         *float64
	Query            string
	InStockOnly      bool
	FeaturedOnly     bool
	Sort             string
	Page             int
	Limit            int
	AttributeFilters map[string]string
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type ProductPage struct {
	Items      []models.Product `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

type AutocompleteSuggestion struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	NameAr string    `json:"name_ar,omitempty"`
	Slug   string    `json:"slug"`
}

// List returns active products matching params. The whole query pair (count
// plus page fetch) runs under one deadline so a pathological filter
// combination fails fast instead of hanging the request.
func (s *CatalogService) List(ctx context.Context, params ListParams) (*ProductPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = DefaultPageSize
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := s.DB.WithContext(ctx).Model(&models.Product{}).Where("products.is_active = ?", true)

	if params.CategoryID != nil {
		if params.IncludeSubtree {
			ids, err := s.Categories.SubtreeIDs(*params.CategoryID)
			if err != nil {
				return nil, err
			}
			query = query.Where("products.category_id IN ?", ids)
		} else {
			query = query.Where("products.category_id = ?", *params.CategoryID)
		}
	}

	if params.PriceMin != nil {
		query = query.Where("products.price >= ?", *params.PriceMin)
	}
	if params.PriceMax != nil {
		query = query.Where("products.price <= ?", *params.PriceMax)
	}
	if params.InStockOnly {
		query = query.Where("products.stock_quantity > 0")
	}
	if params.FeaturedOnly {
		query = query.Where("products.is_featured = ?", true)
	}

	q := strings.TrimSpace(params.Query)
	searching := q != ""
	fullText := searching && len([]rune(q)) >= minFullTextQueryLen
	if searching {
		query = s.applySearch(query, q, fullText)
	}

	query = s.applyAttributeFilters(query, params)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, s.queryError(err)
	}

	listQuery := query.Session(&gorm.Session{})
	listQuery = s.applySort(listQuery, params.Sort, q, searching, fullText)

	var products []models.Product
	offset := (params.Page - 1) * params.Limit
	if err := listQuery.Offset(offset).Limit(params.Limit).Find(&products).Error; err != nil {
		return nil, s.queryError(err)
	}

	totalPages := int((total + int64(params.Limit) - 1) / int64(params.Limit))
	return &ProductPage{
		Items: products,
		Pagination: Pagination{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// Autocomplete suggests up to ten active products by name match, prefix
// matches first. Backend failures degrade to an empty list; suggestions are
// never worth failing a request over.
func (s *CatalogService) Autocomplete(query string, limit int, categoryID *uuid.UUID) []AutocompleteSuggestion {
	q := strings.TrimSpace(query)
	if q == "" {
		return []AutocompleteSuggestion{}
	}
	if limit < 1 || limit > maxAutocompleteResults {
		limit = maxAutocompleteResults
	}

	pattern := "%" + q + "%"
	like := s.likeOperator()

	db := s.DB.Model(&models.Product{}).
		Where("products.is_active = ?", true).
		Where(s.DB.Where("products.name "+like+" ?", pattern).Or("products.name_ar "+like+" ?", pattern))
	if categoryID != nil {
		db = db.Where("products.category_id = ?", *categoryID)
	}

	suggestions := []AutocompleteSuggestion{}
	err := db.
		Select("products.id, products.name, products.name_ar, products.slug, CASE WHEN lower(products.name) LIKE lower(?) THEN 0 ELSE 1 END AS prefix_rank", q+"%").
		Order("prefix_rank asc, products.name asc").
		Limit(limit).
		Scan(&suggestions).Error
	if err != nil {
		log.Printf("autocomplete query failed: %v", err)
		return []AutocompleteSuggestion{}
	}
	return suggestions
}

// applySearch adds the text predicate. Short queries substring-match the
// names on every dialect. Long queries use postgres full-text search where
// available and fall back to substring matching on name and description
// elsewhere (the test dialect has no tsvector support).
func (s *CatalogService) applySearch(query *gorm.DB, q string, fullText bool) *gorm.DB {
	like := s.likeOperator()
	pattern := "%" + q + "%"

	if !fullText {
		return query.Where(s.DB.Where("products.name "+like+" ?", pattern).Or("products.name_ar "+like+" ?", pattern))
	}
	if s.isPostgres() {
		return query.Where(searchVector+" @@ plainto_tsquery('simple', ?)", q)
	}
	return query.Where(s.DB.Where("products.name "+like+" ?", pattern).Or("products.description "+like+" ?", pattern))
}

// applyAttributeFilters narrows by attribute values. Filters apply only when
// a category scope is present, because the effective schema is what makes a
// key trustworthy; unknown keys and unparseable range values are skipped.
func (s *CatalogService) applyAttributeFilters(query *gorm.DB, params ListParams) *gorm.DB {
	if len(params.AttributeFilters) == 0 || params.CategoryID == nil {
		return query
	}

	defs, err := s.Attributes.EffectiveFilters(*params.CategoryID)
	if err != nil {
		// an unknown category already yields an empty page through the
		// category predicate; treat its schema as empty
		if apperr.IsKind(err, apperr.KindNotFound) {
			return query
		}
		log.Printf("effective filters lookup failed: %v", err)
		return query
	}
	schema := make(map[string]models.AttributeDefinition, len(defs))
	for _, def := range defs {
		schema[def.Key] = def
	}

	for key, raw := range params.AttributeFilters {
		def, ok := schema[key]
		if !ok {
			continue
		}
		query = s.applyAttributeFilter(query, def, raw)
	}
	return query
}

func (s *CatalogService) applyAttributeFilter(query *gorm.DB, def models.AttributeDefinition, raw string) *gorm.DB {
	if s.isPostgres() {
		switch def.Type {
		case models.AttributeNumericRange:
			min, max, ok := parseRangeFilter(raw)
			if !ok {
				return query
			}
			// regex guard: drifted non-numeric values must not abort the
			// whole query with a cast error
			query = query.Where(`(products.attributes ->> ?) ~ '^-?[0-9]+(\.[0-9]+)?$'`, def.Key)
			if min != nil {
				query = query.Where("(products.attributes ->> ?)::numeric >= ?", def.Key, *min)
			}
			if max != nil {
				query = query.Where("(products.attributes ->> ?)::numeric <= ?", def.Key, *max)
			}
			return query
		case models.AttributeMultiSelect:
			return query.Where("products.attributes -> ? @> to_jsonb(?::text)", def.Key, raw)
		default:
			return query.Where("products.attributes ->> ? = ?", def.Key, raw)
		}
	}

	path := `$."` + def.Key + `"`
	switch def.Type {
	case models.AttributeNumericRange:
		min, max, ok := parseRangeFilter(raw)
		if !ok {
			return query
		}
		query = query.Where("json_extract(products.attributes, ?) IS NOT NULL", path)
		if min != nil {
			query = query.Where("CAST(json_extract(products.attributes, ?) AS REAL) >= ?", path, *min)
		}
		if max != nil {
			query = query.Where("CAST(json_extract(products.attributes, ?) AS REAL) <= ?", path, *max)
		}
		return query
	case models.AttributeMultiSelect:
		// json_each iterates array elements, or the single scalar value for
		// drifted non-array data
		return query.Where("EXISTS (SELECT 1 FROM json_each(products.attributes, ?) WHERE json_each.value = ?)", path, raw)
	default:
		return query.Where("json_extract(products.attributes, ?) = ?", path, raw)
	}
}

func (s *CatalogService) applySort(query *gorm.DB, sortKey, q string, searching, fullText bool) *gorm.DB {
	if sortKey == "" && searching {
		sortKey = "relevance"
	}

	switch sortKey {
	case "price_asc":
		return query.Order("products.price asc")
	case "price_desc":
		return query.Order("products.price desc")
	case "featured":
		return query.Order("products.is_featured desc, products.is_sponsored desc, products.created_at desc")
	case "relevance":
		if !searching {
			return query.Order("products.created_at desc")
		}
		if fullText && s.isPostgres() {
			return query.
				Select("products.*, ts_rank("+searchVector+", plainto_tsquery('simple', ?)) AS search_rank", q).
				Order("search_rank desc, products.created_at desc")
		}
		return query.
			Select(`products.*, CASE
				WHEN lower(products.name) = lower(?) THEN 0
				WHEN lower(products.name) LIKE lower(?) THEN 1
				WHEN lower(products.name) LIKE lower(?) THEN 2
				ELSE 3 END AS search_rank`, q, q+"%", "%"+q+"%").
			Order("search_rank asc, products.created_at desc")
	default:
		return query.Order("products.created_at desc")
	}
}

func (s *CatalogService) queryError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Internal("product.searchTimeout", err)
	}
	return apperr.Internal("common.internalError", err)
}

func (s *CatalogService) isPostgres() bool {
	return s.DB.Dialector.Name() == "postgres"
}

func (s *CatalogService) likeOperator() string {
	if s.isPostgres() {
		return "ILIKE"
	}
	return "LIKE"
}

// parseRangeFilter reads "8-16", "8-", "-16" or a single value "8". Values
// that parse on neither side reject the whole filter.
func parseRangeFilter(raw string) (*float64, *float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, false
	}
	if !strings.Contains(raw, "-") {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, false
		}
		return &v, &v, true
	}

	parts := strings.SplitN(raw, "-", 2)
	var min, max *float64
	if strings.TrimSpace(parts[0]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, nil, false
		}
		min = &v
	}
	if strings.TrimSpace(parts[1]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, nil, false
		}
		max = &v
	}
	if min == nil && max == nil {
		return nil, nil, false
	}
	return min, max, true
}

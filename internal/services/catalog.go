package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog-browser-api/internal/models"
	"catalog-browser-api/internal/sparql"
	"catalog-browser-api/pkg/cache"
	"catalog-browser-api/pkg/utils"
)

// Querier executes a SPARQL query. *sparql.Client implements it.
type Querier interface {
	Query(ctx context.Context, query string) (*sparql.Results, error)
}

type Options struct {
	PageSize           int
	MaxParallelLookups int
	// CombinedListing issues one query carrying both rows and count instead of
	// two concurrent ones.
	CombinedListing bool
}

type CatalogService struct {
	builder *sparql.Builder
	client  Querier
	cache   *cache.RedisCache
	logger  *zap.Logger
	opts    Options
}

func NewCatalogService(builder *sparql.Builder, client Querier, redisCache *cache.RedisCache, logger *zap.Logger, opts Options) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize < 1 {
		opts.PageSize = 30
	}
	if opts.MaxParallelLookups < 1 {
		opts.MaxParallelLookups = 8
	}
	return &CatalogService{
		builder: builder,
		client:  client,
		cache:   redisCache,
		logger:  logger,
		opts:    opts,
	}
}

func (s *CatalogService) PageSize() int { return s.opts.PageSize }

// Categories returns the top-level category labels.
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	return s.labels(ctx, cache.LabelsKey("top", ""), s.builder.CategoriesQuery(), sparql.VarCategoryLabel)
}

func (s *CatalogService) Stores(ctx context.Context) ([]string, error) {
	return s.labels(ctx, cache.LabelsKey("stores", ""), s.builder.StoresQuery(), sparql.VarStoreLabel)
}

func (s *CatalogService) SubCategoriesOf(ctx context.Context, parent string) ([]string, error) {
	return s.ChildrenOf(ctx, models.LevelSub, parent)
}

func (s *CatalogService) EndCategoriesOf(ctx context.Context, parent string) ([]string, error) {
	return s.ChildrenOf(ctx, models.LevelEnd, parent)
}

// ChildrenOf lists the options at level for one selected parent label.
func (s *CatalogService) ChildrenOf(ctx context.Context, level models.CategoryLevel, parent string) ([]string, error) {
	query, err := s.builder.ChildrenQuery(level, parent)
	if err != nil {
		return nil, err
	}
	return s.labels(ctx, cache.LabelsKey(level.String(), parent), query, sparql.LabelVar(level))
}

// ChildrenOfAll derives the options at level from every selected parent. One
// lookup runs per parent; a failed lookup contributes nothing. The result is
// the sorted union of all contributions.
func (s *CatalogService) ChildrenOfAll(ctx context.Context, level models.CategoryLevel, parents []string) []string {
	parents = models.SortedUnique(parents)
	if len(parents) == 0 {
		return []string{}
	}

	contributions := make([][]string, len(parents))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.MaxParallelLookups)
	for i, parent := range parents {
		i, parent := i, parent
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("cascade lookup panic recovered",
						zap.Any("panic", r), zap.String("parent", parent), zap.Stringer("level", level))
				}
			}()

			labels, err := s.ChildrenOf(ctx, level, parent)
			if err != nil {
				s.logger.Warn("cascade lookup failed, contributing nothing",
					zap.String("parent", parent), zap.Stringer("level", level), zap.Error(err))
				return nil
			}
			contributions[i] = labels
			return nil
		})
	}
	_ = g.Wait()

	var merged []string
	for _, c := range contributions {
		merged = append(merged, c...)
	}
	return models.SortedUnique(merged)
}

// FetchPage returns one page of products matching sel.
func (s *CatalogService) FetchPage(ctx context.Context, sel models.FilterSelection, page int) ([]models.Product, error) {
	query, err := s.builder.ProductsQuery(sel, sparql.Page{Number: page, Size: s.opts.PageSize})
	if err != nil {
		return nil, err
	}

	key := cache.PageKey(query)
	if s.cache.IsAvailable() {
		if cached, ok, err := s.cache.GetProducts(ctx, key); err == nil && ok {
			s.logger.Debug("cache hit", zap.String("key", key))
			return cached, nil
		}
	}

	res, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	products := decodeProducts(res)

	s.store(ctx, key, func(ctx context.Context) error { return s.cache.SetProducts(ctx, key, products) })
	return products, nil
}

// FetchCount returns how many distinct products match sel.
func (s *CatalogService) FetchCount(ctx context.Context, sel models.FilterSelection) (int, error) {
	query, err := s.builder.CountQuery(sel)
	if err != nil {
		return 0, err
	}

	key := cache.CountKey(query)
	if s.cache.IsAvailable() {
		if n, ok, err := s.cache.GetCount(ctx, key); err == nil && ok {
			return n, nil
		}
	}

	res, err := s.client.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("fetch count: %w", err)
	}
	if res.Empty() {
		return 0, nil
	}
	n, err := parseCount(res.Rows()[0].Value(sparql.VarTotalCount))
	if err != nil {
		return 0, err
	}

	s.store(ctx, key, func(ctx context.Context) error { return s.cache.SetCount(ctx, key, n) })
	return n, nil
}

// FetchListing returns a page together with the total count and page count.
// The returned Page is the page actually served.
func (s *CatalogService) FetchListing(ctx context.Context, sel models.FilterSelection, page int) (*models.ProductPage, error) {
	startTime := time.Now()

	var (
		products []models.Product
		total    int
		err      error
	)
	if s.opts.CombinedListing {
		products, total, err = s.fetchCombined(ctx, sel, page)
	} else {
		products, total, err = s.fetchSplit(ctx, sel, page)
	}
	if err != nil {
		return nil, err
	}

	// A page past the end is served as the last page, and an empty result
	// as page 1 of 1.
	totalPages := models.TotalPages(total, s.opts.PageSize)
	switch {
	case total == 0:
		page = 1
	case len(products) == 0 && page > totalPages:
		page = totalPages
		if products, err = s.FetchPage(ctx, sel, page); err != nil {
			return nil, err
		}
	}
	if products == nil {
		products = []models.Product{}
	}
	filters := sel.Clone()
	return &models.ProductPage{
		Products:   products,
		Total:      total,
		Page:       page,
		PageSize:   s.opts.PageSize,
		TotalPages: totalPages,
		NoResults:  total == 0,
		Filters:    &filters,
		Duration:   time.Since(startTime).String(),
	}, nil
}

func (s *CatalogService) fetchSplit(ctx context.Context, sel models.FilterSelection, page int) ([]models.Product, int, error) {
	var (
		products []models.Product
		total    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.FetchPage(gctx, sel, page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.FetchCount(gctx, sel)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// fetchCombined reads the total from the first row. An empty page carries no
// count, so the count is then fetched on its own.
func (s *CatalogService) fetchCombined(ctx context.Context, sel models.FilterSelection, page int) ([]models.Product, int, error) {
	query, err := s.builder.ListingQuery(sel, sparql.Page{Number: page, Size: s.opts.PageSize})
	if err != nil {
		return nil, 0, err
	}

	res, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch listing page %d: %w", page, err)
	}

	if res.Empty() {
		total, err := s.FetchCount(ctx, sel)
		if err != nil {
			return nil, 0, err
		}
		return []models.Product{}, total, nil
	}

	total, err := parseCount(res.Rows()[0].Value(sparql.VarTotalCount))
	if err != nil {
		return nil, 0, err
	}
	return decodeProducts(res), total, nil
}

func (s *CatalogService) labels(ctx context.Context, key, query, variable string) ([]string, error) {
	if s.cache.IsAvailable() {
		if cached, ok, err := s.cache.GetLabels(ctx, key); err == nil && ok {
			s.logger.Debug("cache hit", zap.String("key", key))
			return cached, nil
		} else if err != nil {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	res, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", variable, err)
	}
	labels := res.Labels(variable)

	s.store(ctx, key, func(ctx context.Context) error { return s.cache.SetLabels(ctx, key, labels) })
	return labels, nil
}

// store writes to the cache when it is available. Failures are logged only.
func (s *CatalogService) store(ctx context.Context, key string, write func(context.Context) error) {
	if !s.cache.IsAvailable() {
		return
	}
	if err := write(ctx); err != nil {
		s.logger.Warn("failed to cache results", zap.String("key", key), zap.Error(err))
	}
}

func decodeProducts(res *sparql.Results) []models.Product {
	rows := res.Rows()
	products := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		full := row.Value(sparql.VarFullCategory)
		p := models.Product{
			ID:              row.Value(sparql.VarProduct),
			Title:           row.Value(sparql.VarTitle),
			Store:           row.Value(sparql.VarStore),
			FullCategory:    full,
			RegularPrice:    utils.ParsePrice(row.Value(sparql.VarRegularPrice)),
			DiscountedPrice: utils.ParsePrice(row.Value(sparql.VarDiscountedPrice)),
			DiscountPercent: utils.ParsePercent(row.Value(sparql.VarDiscountPercent)),
			URL:             row.Value(sparql.VarURL),
		}
		if full != "" {
			p.CategoryPath = strings.Split(full, sparql.CategoryPathSeparator)
		}
		products = append(products, p)
	}
	return products
}

func parseCount(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", sparql.VarTotalCount, v, err)
	}
	return n, nil
}

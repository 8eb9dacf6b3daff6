package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog-browser-api/internal/models"
)

// Catalog is what the controller needs from the catalog service.
type Catalog interface {
	Categories(ctx context.Context) ([]string, error)
	Stores(ctx context.Context) ([]string, error)
	ChildrenOfAll(ctx context.Context, level models.CategoryLevel, parents []string) []string
	FetchPage(ctx context.Context, sel models.FilterSelection, page int) ([]models.Product, error)
	FetchCount(ctx context.Context, sel models.FilterSelection) (int, error)
}

// Controller runs one browsing session. User actions update the state
// synchronously; the lookups they trigger run on their own goroutines and
// publish their results through the generation-checked transitions in
// state.go. Superseded work is also cancelled through its context.
type Controller struct {
	catalog Catalog
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	cascadeCancel map[models.CategoryLevel]context.CancelFunc
	listingCancel context.CancelFunc
	inflight      int
	idle          chan struct{}
	lastSeen      time.Time
}

func New(catalog Catalog, logger *zap.Logger, pageSize int) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Controller{
		catalog:       catalog,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		state:         NewState(pageSize),
		cascadeCancel: make(map[models.CategoryLevel]context.CancelFunc),
		idle:          idle,
		lastSeen:      time.Now(),
	}
}

// Start issues the initial loads: top categories, stores and the first page.
// Each completes independently.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spawnLocked(func(ctx context.Context) { c.runLookup(ctx, LookupCategories) })
	c.spawnLocked(func(ctx context.Context) { c.runLookup(ctx, LookupStores) })

	var req ListingRequest
	c.state, req = BeginListing(c.state)
	c.startListingLocked(req)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Controller) Toggle(facet Facet, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	next, req, err := Toggle(c.state, facet, label)
	if err != nil {
		return err
	}
	c.state = next
	c.cascadeLocked(facet, req)
	return nil
}

func (c *Controller) RemoveChip(facet Facet, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	next, req, err := RemoveChip(c.state, facet, label)
	if err != nil {
		return err
	}
	c.state = next
	c.cascadeLocked(facet, req)
	return nil
}

func (c *Controller) SetBounds(b models.Bounds) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	next, err := SetBounds(c.state, b)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) Apply() {
	c.listing(ApplyFilters)
}

func (c *Controller) GoToPage(page int) {
	c.listing(func(s State) (State, ListingRequest) { return GoToPage(s, page) })
}

// GoToPageInput handles the free-text page box.
func (c *Controller) GoToPageInput(input string) error {
	page, err := ParsePageInput(input)
	if err != nil {
		return err
	}
	c.GoToPage(page)
	return nil
}

func (c *Controller) Next() {
	c.listing(NextPage)
}

func (c *Controller) Prev() {
	c.listing(PrevPage)
}

// Settle blocks until no lookups are in flight or ctx is done.
func (c *Controller) Settle(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.inflight == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels all in-flight work. Results arriving afterwards are dropped.
func (c *Controller) Close() {
	c.cancel()
}

// Touch marks the session as active.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
}

func (c *Controller) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Controller) listing(transition func(State) (State, ListingRequest)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	var req ListingRequest
	c.state, req = transition(c.state)
	c.startListingLocked(req)
}

func (c *Controller) cascadeLocked(facet Facet, req *CascadeRequest) {
	// A new top-level selection invalidates any end-level cascade too.
	if facet == FacetCategory {
		c.cancelCascadeLocked(models.LevelSub)
		c.cancelCascadeLocked(models.LevelEnd)
	}
	if facet == FacetSubCategory {
		c.cancelCascadeLocked(models.LevelEnd)
	}
	if req == nil {
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.cascadeCancel[req.Level] = cancel
	r := *req
	c.spawnWithContextLocked(ctx, cancel, func(ctx context.Context) { c.runCascade(ctx, r) })
}

func (c *Controller) cancelCascadeLocked(level models.CategoryLevel) {
	if cancel, ok := c.cascadeCancel[level]; ok {
		cancel()
		delete(c.cascadeCancel, level)
	}
}

func (c *Controller) startListingLocked(req ListingRequest) {
	if c.listingCancel != nil {
		c.listingCancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.listingCancel = cancel
	c.spawnWithContextLocked(ctx, cancel, func(ctx context.Context) { c.runListing(ctx, req) })
}

func (c *Controller) runCascade(ctx context.Context, req CascadeRequest) {
	labels := c.catalog.ChildrenOfAll(ctx, req.Level, req.Parents)
	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next, applied := ApplyCascade(c.state, req, labels)
	if !applied {
		c.logger.Debug("dropping stale cascade",
			zap.Stringer("level", req.Level), zap.Uint64("generation", req.Generation))
		return
	}
	c.state = next
}

func (c *Controller) runListing(ctx context.Context, req ListingRequest) {
	var (
		products []models.Product
		total    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = c.catalog.FetchPage(gctx, req.Selection, req.Page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = c.catalog.FetchCount(gctx, req.Selection)
		return err
	})
	err := g.Wait()
	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		next, applied := FailListing(c.state, req)
		if applied {
			c.logger.Error("product listing failed", zap.Int("page", req.Page), zap.Error(err))
			c.state = next
		}
		return
	}

	next, followUp, applied := ApplyListing(c.state, req, products, total)
	if !applied {
		c.logger.Debug("dropping stale listing", zap.Uint64("generation", req.Generation))
		return
	}
	c.state = next
	if followUp != nil {
		c.logger.Info("page beyond result set, loading last page",
			zap.Int("requested", req.Page), zap.Int("page", followUp.Page))
		c.startListingLocked(*followUp)
	}
}

func (c *Controller) runLookup(ctx context.Context, kind LookupKind) {
	var (
		labels []string
		err    error
	)
	switch kind {
	case LookupCategories:
		labels, err = c.catalog.Categories(ctx)
	case LookupStores:
		labels, err = c.catalog.Stores(ctx)
	}
	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Error("lookup failed", zap.Int("kind", int(kind)), zap.Error(err))
		c.state = FailLookup(c.state, kind)
		return
	}
	c.state = ApplyLookup(c.state, kind, labels)
}

func (c *Controller) spawnLocked(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.spawnWithContextLocked(ctx, cancel, fn)
}

// spawnWithContextLocked runs fn on its own goroutine and tracks it for
// Settle. c.mu must be held.
func (c *Controller) spawnWithContextLocked(ctx context.Context, cancel context.CancelFunc, fn func(ctx context.Context)) {
	if c.inflight == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight++

	go func() {
		defer func() {
			cancel()
			c.mu.Lock()
			c.inflight--
			if c.inflight == 0 {
				close(c.idle)
			}
			c.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("controller effect panic recovered", zap.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
}

func (c *Controller) touchLocked() {
	c.lastSeen = time.Now()
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"catalog-browser-api/internal/controller"
	"catalog-browser-api/internal/models"
	"catalog-browser-api/internal/services"
	"catalog-browser-api/internal/sparql"
	"catalog-browser-api/pkg/cache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCatalog serves both the stateless endpoints and session controllers.
type fakeCatalog struct {
	mu       sync.Mutex
	children map[string][]string
	total    int
	err      error
	lastSel  models.FilterSelection
	lastPage int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		children: map[string][]string{
			"Laptops":  {"Gaming", "Ultrabook"},
			"Gaming":   {"17 inch"},
			"TV/Audio": {"Soundbars"},
		},
		total: 125,
	}
}

func (f *fakeCatalog) Categories(ctx context.Context) ([]string, error) {
	return []string{"Laptops", "Phones"}, f.err
}

func (f *fakeCatalog) Stores(ctx context.Context) ([]string, error) {
	return []string{"Gigatron"}, f.err
}

func (f *fakeCatalog) ChildrenOf(ctx context.Context, level models.CategoryLevel, parent string) ([]string, error) {
	if level == models.LevelTop {
		return nil, sparql.ErrUnknownLevel
	}
	return f.children[parent], f.err
}

func (f *fakeCatalog) ChildrenOfAll(ctx context.Context, level models.CategoryLevel, parents []string) []string {
	var out []string
	for _, p := range parents {
		out = append(out, f.children[p]...)
	}
	return models.SortedUnique(out)
}

func (f *fakeCatalog) FetchPage(ctx context.Context, sel models.FilterSelection, page int) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSel, f.lastPage = sel, page
	if page > models.TotalPages(f.total, 30) {
		return []models.Product{}, f.err
	}
	return []models.Product{{Title: "Aspire 7", Store: "Gigatron"}}, f.err
}

func (f *fakeCatalog) FetchCount(ctx context.Context, sel models.FilterSelection) (int, error) {
	return f.total, f.err
}

func (f *fakeCatalog) FetchListing(ctx context.Context, sel models.FilterSelection, page int) (*models.ProductPage, error) {
	products, err := f.FetchPage(ctx, sel, page)
	if err != nil {
		return nil, err
	}
	return &models.ProductPage{
		Products:   products,
		Total:      f.total,
		Page:       page,
		PageSize:   30,
		TotalPages: models.TotalPages(f.total, 30),
		NoResults:  f.total == 0,
	}, nil
}

type testServer struct {
	router   *gin.Engine
	catalog  *fakeCatalog
	sessions *controller.Sessions
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cat := newFakeCatalog()
	sessions := controller.NewSessions(cat, logger, 30)
	t.Cleanup(sessions.CloseAll)

	opts.Catalog = cat
	opts.Sessions = sessions
	opts.Logger = logger
	if opts.Limiter == nil {
		opts.Limiter = NewIPRateLimiter(1000, 1000)
	}
	opts.SettleTimeout = 2 * time.Second
	return &testServer{router: NewRouter(opts), catalog: cat, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth_WithoutCache(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "redis unavailable", body["cache"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = s.do(t, http.MethodGet, "/cache/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodOptions, "/api/products", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	restricted := newTestServer(t, Options{AllowedOrigins: []string{"https://shop.example"}})
	w = restricted.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{Limiter: NewIPRateLimiter(0.001, 1)})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, w)["error"])
}

func TestCategoriesAndChildren(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Laptops", "Phones"}, decode[map[string]any](t, w)["categories"])

	w = s.do(t, http.MethodGet, "/api/categories/Gaming/children?level=end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "end", body["level"])
	assert.Equal(t, []any{"17 inch"}, body["children"])

	w = s.do(t, http.MethodGet, "/api/categories/Laptops/children?level=brand", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/categories/Laptops/children?level=top", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLabelsWithSlash(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/categories/TV%2FAudio/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "TV/Audio", body["parent"])
	assert.Equal(t, []any{"Soundbars"}, body["children"])

	id, _ := s.sessions.Create()
	base := "/api/sessions/" + id

	w = s.do(t, http.MethodPost, base+"/toggle?wait=true", gin.H{"level": "store", "label": "TV/Audio"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"TV/Audio"}, decode[sessionResponse](t, w).State.Selection.Stores)

	w = s.do(t, http.MethodDelete, base+"/chips/store/TV%2FAudio?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[sessionResponse](t, w).State.Selection.Stores)
}

// sparqlEndpoint answers count queries with total and returns one product
// only for the page at lastOffset.
func sparqlEndpoint(t *testing.T, total, lastOffset int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.PostForm.Get("query")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		switch {
		case strings.Contains(query, "COUNT(DISTINCT"):
			fmt.Fprintf(w, `{"head":{"vars":["totalCount"]},"results":{"bindings":[{"totalCount":{"type":"literal","value":"%d"}}]}}`, total)
		case strings.Contains(query, fmt.Sprintf("OFFSET %d\n", lastOffset)):
			fmt.Fprint(w, `{"head":{"vars":["product","title"]},"results":{"bindings":[{"product":{"type":"uri","value":"http://example.org/p/1"},"title":{"type":"literal","value":"Aspire 7"}}]}}`)
		default:
			fmt.Fprint(w, `{"head":{"vars":["product","title"]},"results":{"bindings":[]}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListProducts_PageBeyondEnd(t *testing.T) {
	endpoint := sparqlEndpoint(t, 125, 120)
	builder, err := sparql.NewBuilder(sparql.DefaultVocabulary("http://example.org/catalog#"))
	require.NoError(t, err)
	client, err := sparql.NewClient(endpoint.URL, 2*time.Second)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	catalog := services.NewCatalogService(builder, client, nil, logger, services.Options{PageSize: 30})

	s := &testServer{router: NewRouter(Options{
		Catalog: catalog,
		Logger:  logger,
		Limiter: NewIPRateLimiter(1000, 1000),
	})}

	w := s.do(t, http.MethodGet, "/api/products?page=400", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.ProductPage](t, w)
	assert.Equal(t, 5, page.Page)
	assert.Equal(t, 5, page.TotalPages)
	assert.False(t, page.NoResults)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "Aspire 7", page.Products[0].Title)

	w = s.do(t, http.MethodGet, "/api/products?page=9223372036854775807", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode[models.ErrorResponse](t, w).Error)
}

func TestListProducts_ParsesFilters(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet,
		"/api/products?category=Laptops&category=Phones&store=Gigatron&min_price=100&max_discount=50&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	page := decode[models.ProductPage](t, w)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 5, page.TotalPages)
	assert.Len(t, page.Products, 1)

	sel := s.catalog.lastSel
	assert.Equal(t, []string{"Laptops", "Phones"}, sel.Categories)
	assert.Equal(t, []string{"Gigatron"}, sel.Stores)
	require.NotNil(t, sel.MinPrice)
	assert.Equal(t, 100.0, *sel.MinPrice)
	assert.Nil(t, sel.MaxPrice)
	require.NotNil(t, sel.MaxDiscount)
	assert.Equal(t, 50.0, *sel.MaxDiscount)
}

func TestListProducts_RejectsBadInput(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, path := range []string{
		"/api/products?page=0",
		"/api/products?page=two",
		"/api/products?min_price=cheap",
		"/api/products?min_price=500&max_price=100",
	} {
		w := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "invalid_request", decode[models.ErrorResponse](t, w).Error, path)
	}
}

func TestListProducts_UpstreamFailure(t *testing.T) {
	s := newTestServer(t, Options{})
	s.catalog.err = &sparql.HTTPError{StatusCode: http.StatusServiceUnavailable}

	w := s.do(t, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "sparql_query_failed", decode[models.ErrorResponse](t, w).Error)

	s.catalog.err = fmt.Errorf("fetch stores: %w", context.DeadlineExceeded)
	w = s.do(t, http.MethodGet, "/api/stores", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodPost, "/api/sessions?wait=true", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[sessionResponse](t, w)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, []string{"Laptops", "Phones"}, created.State.Categories)
	assert.Equal(t, 5, created.State.Page.TotalPages)
	assert.False(t, created.State.Loading)

	base := "/api/sessions/" + created.SessionID

	w = s.do(t, http.MethodPost, base+"/toggle?wait=true", gin.H{"level": "top", "label": "Laptops"})
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[sessionResponse](t, w).State
	assert.Equal(t, []string{"Laptops"}, state.Selection.Categories)
	assert.Equal(t, []string{"Gaming", "Ultrabook"}, state.SubCategories)

	w = s.do(t, http.MethodPut, base+"/bounds", gin.H{"min_price": "100", "max_price": 900})
	require.Equal(t, http.StatusOK, w.Code)
	state = decode[sessionResponse](t, w).State
	require.NotNil(t, state.Selection.MaxPrice)
	assert.Equal(t, 900.0, *state.Selection.MaxPrice)

	w = s.do(t, http.MethodPost, base+"/apply?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[sessionResponse](t, w).State.Page.CurrentPage)

	w = s.do(t, http.MethodPost, base+"/page?wait=true", gin.H{"page": "99"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decode[sessionResponse](t, w).State.Page.CurrentPage)

	w = s.do(t, http.MethodPost, base+"/prev?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[sessionResponse](t, w).State.Page.CurrentPage)

	w = s.do(t, http.MethodPost, base+"/next?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decode[sessionResponse](t, w).State.Page.CurrentPage)

	w = s.do(t, http.MethodDelete, base+"/chips/top/Laptops?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state = decode[sessionResponse](t, w).State
	assert.Empty(t, state.Selection.Categories)
	assert.Empty(t, state.SubCategories)

	w = s.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session_not_found", decode[models.ErrorResponse](t, w).Error)
}

func TestSession_BadInput(t *testing.T) {
	s := newTestServer(t, Options{})
	id, _ := s.sessions.Create()
	base := "/api/sessions/" + id

	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, base + "/toggle", gin.H{"level": "brand", "label": "Acme"}},
		{http.MethodPost, base + "/toggle", gin.H{"level": "top"}},
		{http.MethodPost, base + "/page", gin.H{"page": "last"}},
		{http.MethodPut, base + "/bounds", gin.H{"min_price": "cheap"}},
		{http.MethodPut, base + "/bounds", gin.H{"min_discount": 50, "max_discount": 10}},
		{http.MethodDelete, base + "/chips/brand/Acme", nil},
	}
	for _, tc := range cases {
		w := s.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", tc.method, tc.path)
	}

	w := s.do(t, http.MethodPost, "/api/sessions/missing/next", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := cache.New(client, time.Minute, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = rc.Close() })

	ctx := context.Background()
	require.NoError(t, rc.SetLabels(ctx, cache.LabelsKey("top", ""), []string{"Laptops"}))
	require.NoError(t, mr.Set("unrelated", "keep"))

	s := newTestServer(t, Options{Cache: rc})

	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "redis connected", decode[map[string]any](t, w)["cache"])

	w = s.do(t, http.MethodGet, "/cache/debug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total_keys"])

	w = s.do(t, http.MethodDelete, "/cache/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rc.GetAllKeys(ctx))
	assert.True(t, mr.Exists("unrelated"))

	w = s.do(t, http.MethodGet, "/rate-limit/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "burst_capacity"))
}

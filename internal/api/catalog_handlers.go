package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"catalog-browser-api/internal/models"
	"catalog-browser-api/pkg/utils"
)

var errBadRequest = errors.New("invalid request")

func (h *handler) listCategories(c *gin.Context) {
	labels, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": labels, "count": len(labels)})
}

func (h *handler) listStores(c *gin.Context) {
	labels, err := h.catalog.Stores(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": labels, "count": len(labels)})
}

// listChildren answers /api/categories/:label/children?level=sub|end.
func (h *handler) listChildren(c *gin.Context) {
	level := models.LevelSub
	if raw := c.Query("level"); raw != "" {
		parsed, err := models.ParseCategoryLevel(raw)
		if err != nil {
			h.respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		level = parsed
	}

	parent := c.Param("label")
	labels, err := h.catalog.ChildrenOf(c.Request.Context(), level, parent)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"parent":   parent,
		"level":    level.String(),
		"children": labels,
		"count":    len(labels),
	})
}

func (h *handler) listProducts(c *gin.Context) {
	sel, page, err := parseListingParams(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.catalog.FetchListing(c.Request.Context(), sel, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// parseListingParams reads a filter selection from repeatable query
// parameters (?category=A&category=B) and the optional page number.
func parseListingParams(c *gin.Context) (models.FilterSelection, int, error) {
	sel := models.FilterSelection{
		Categories:    nonEmpty(c.QueryArray("category")),
		SubCategories: nonEmpty(c.QueryArray("sub_category")),
		EndCategories: nonEmpty(c.QueryArray("end_category")),
		Stores:        nonEmpty(c.QueryArray("store")),
	}

	var err error
	for _, b := range []struct {
		name string
		dst  **float64
	}{
		{"min_price", &sel.MinPrice},
		{"max_price", &sel.MaxPrice},
		{"min_discount", &sel.MinDiscount},
		{"max_discount", &sel.MaxDiscount},
	} {
		if *b.dst, err = utils.ParseBound(c.Query(b.name)); err != nil {
			return sel, 0, fmt.Errorf("%w: %s must be a number", errBadRequest, b.name)
		}
	}
	if err := sel.Bounds.Validate(); err != nil {
		return sel, 0, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	page := 1
	if p := c.Query("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			return sel, 0, fmt.Errorf("%w: page must be a positive whole number", errBadRequest)
		}
	}
	return sel, page, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

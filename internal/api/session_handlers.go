package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"catalog-browser-api/internal/controller"
	"catalog-browser-api/internal/models"
	"catalog-browser-api/pkg/utils"
)

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	State     controller.State `json:"state"`
}

type toggleRequest struct {
	Level string `json:"level" binding:"required"`
	Label string `json:"label" binding:"required"`
}

// Bounds and page accept either JSON numbers or the raw text typed by the user.
type boundsRequest struct {
	MinPrice    json.RawMessage `json:"min_price"`
	MaxPrice    json.RawMessage `json:"max_price"`
	MinDiscount json.RawMessage `json:"min_discount"`
	MaxDiscount json.RawMessage `json:"max_discount"`
}

type pageRequest struct {
	Page json.RawMessage `json:"page" binding:"required"`
}

type sessionHandler func(c *gin.Context, ctrl *controller.Controller) error

// withSession resolves :id, runs fn and answers with the session snapshot,
// optionally after the triggered lookups have settled.
func (h *handler) withSession(fn sessionHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctrl, err := h.sessions.Get(id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if err := fn(c, ctrl); err != nil {
			h.respondError(c, err)
			return
		}
		h.respondSession(c, http.StatusOK, id, ctrl)
	}
}

func (h *handler) respondSession(c *gin.Context, status int, id string, ctrl *controller.Controller) {
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.settleTimeout)
		defer cancel()
		if err := ctrl.Settle(ctx); err != nil {
			h.logger.Warn("session did not settle before responding",
				zap.String("session_id", id), zap.Error(err))
		}
	}
	c.JSON(status, sessionResponse{SessionID: id, State: ctrl.Snapshot()})
}

func (h *handler) createSession(c *gin.Context) {
	id, ctrl := h.sessions.Create()
	c.Header("Location", "/api/sessions/"+id)
	h.respondSession(c, http.StatusCreated, id, ctrl)
}

func (h *handler) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Delete(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed", "session_id": id})
}

func (h *handler) getSession(c *gin.Context, ctrl *controller.Controller) error {
	return nil
}

func (h *handler) toggle(c *gin.Context, ctrl *controller.Controller) error {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	facet, err := controller.ParseFacet(req.Level)
	if err != nil {
		return err
	}
	return ctrl.Toggle(facet, req.Label)
}

func (h *handler) removeChip(c *gin.Context, ctrl *controller.Controller) error {
	facet, err := controller.ParseFacet(c.Param("level"))
	if err != nil {
		return err
	}
	return ctrl.RemoveChip(facet, c.Param("label"))
}

func (h *handler) setBounds(c *gin.Context, ctrl *controller.Controller) error {
	var req boundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	var (
		b   models.Bounds
		err error
	)
	for _, f := range []struct {
		name string
		raw  json.RawMessage
		dst  **float64
	}{
		{"min_price", req.MinPrice, &b.MinPrice},
		{"max_price", req.MaxPrice, &b.MaxPrice},
		{"min_discount", req.MinDiscount, &b.MinDiscount},
		{"max_discount", req.MaxDiscount, &b.MaxDiscount},
	} {
		if *f.dst, err = parseBoundField(f.raw); err != nil {
			return fmt.Errorf("%w: %s must be a number", errBadRequest, f.name)
		}
	}

	if err := ctrl.SetBounds(b); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (h *handler) apply(c *gin.Context, ctrl *controller.Controller) error {
	ctrl.Apply()
	return nil
}

func (h *handler) goToPage(c *gin.Context, ctrl *controller.Controller) error {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return ctrl.GoToPageInput(rawText(req.Page))
}

func (h *handler) next(c *gin.Context, ctrl *controller.Controller) error {
	ctrl.Next()
	return nil
}

func (h *handler) prev(c *gin.Context, ctrl *controller.Controller) error {
	ctrl.Prev()
	return nil
}

func parseBoundField(raw json.RawMessage) (*float64, error) {
	return utils.ParseBound(rawText(raw))
}

// rawText unwraps a JSON string, or returns a number or null literal as text.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

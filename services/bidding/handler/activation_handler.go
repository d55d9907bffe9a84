package handler

import (
	"context"
	"net/http"
	"time"

	"live-bidding/internal/clock"
	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
)

type ActivatorInterface interface {
	ActivateDue(ctx context.Context, now time.Time) ([]string, error)
}

type ActivationHandler struct {
	activator ActivatorInterface
	clock     clock.Clock
}

func NewActivationHandler(activator ActivatorInterface, clk clock.Clock) *ActivationHandler {
	return &ActivationHandler{activator: activator, clock: clk}
}

// ActivateHandler handles POST /internal/activate. The body is optional; an
// explicit "now" is only honoured when it is not in the future.
func (h *ActivationHandler) ActivateHandler(c *gin.Context) {
	var req helpers.ActivateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.HandleBindError(c, "ActivateHandler", err)
			return
		}
	}

	now := h.clock.Now()
	if req.Now != nil && !req.Now.After(now) {
		now = req.Now.UTC()
	}

	ids, err := h.activator.ActivateDue(c.Request.Context(), now)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Error("ActivateHandler: sweep failed", map[string]any{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ActivateResponse{Activated: ids}, "activation sweep completed")
	helpers.LogSuccess("ActivateHandler", "activation sweep completed", map[string]any{"activated": len(ids)})
}

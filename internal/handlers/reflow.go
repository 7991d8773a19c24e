package handlers

import (
	"github.com/gin-gonic/gin"
)

// StartReflowRequest is the body of POST /api/v1/reflow/start.
// An empty curve starts the configured default.
type StartReflowRequest struct {
	Curve string `json:"curve" example:"Sn63Pb37"`
}

// @Summary      Start a reflow run
// @Description  Enters PRECHECK; the run begins once the oven is at or below the curve's minimum start temperature
// @Tags         reflow
// @Accept       json
// @Produce      json
// @Param        body  body      StartReflowRequest  true  "Curve"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/reflow/start [post]
// @Security     BearerAuth
func (h *Handler) startReflow(c *gin.Context) {
	var req StartReflowRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.StartReflow(c.Request.Context(), req.Curve); err != nil {
		h.commandError(c, "reflow_start_failed", err, "curve", req.Curve)
		return
	}
	h.respondWithStatus(c, statusAccepted, gin.H{"curve": req.Curve})
}

// @Summary      Cancel the reflow run
// @Tags         reflow
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/reflow/cancel [post]
// @Security     BearerAuth
func (h *Handler) cancelReflow(c *gin.Context) {
	if err := h.services.CancelReflow(c.Request.Context()); err != nil {
		h.commandError(c, "reflow_cancel_failed", err)
		return
	}
	h.respondWithStatus(c, statusCancelled, gin.H{})
}

// @Summary      Acknowledge a finished or failed run
// @Tags         reflow
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/reflow/reset [post]
// @Security     BearerAuth
func (h *Handler) resetProcess(c *gin.Context) {
	if err := h.services.ResetProcess(c.Request.Context()); err != nil {
		h.commandError(c, "reflow_reset_failed", err)
		return
	}
	h.respondWithStatus(c, statusOK, gin.H{})
}

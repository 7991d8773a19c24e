package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reflow_oven/internal/calibration"
	"reflow_oven/internal/door"
	"reflow_oven/internal/process"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
	"reflow_oven/internal/service"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusAccepted  = "accepted"
	statusStopped   = "stopped"
	statusCancelled = "cancelled"

	errGetStatus       = "failed to load oven status"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrOutOfRange),
		errors.Is(err, reflow.ErrInvalidCurve):
		return http.StatusBadRequest
	case errors.Is(err, reflow.ErrUnknownCurve),
		errors.Is(err, repository.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrProcessActive),
		errors.Is(err, service.ErrCalibrationActive),
		errors.Is(err, service.ErrNothingToStop),
		errors.Is(err, calibration.ErrCalibrationBusy),
		errors.Is(err, calibration.ErrNotInDoorMode),
		errors.Is(err, calibration.ErrOutputsHeld),
		errors.Is(err, process.ErrInvalidTransition),
		errors.Is(err, process.ErrPredicateFailed),
		errors.Is(err, door.ErrUnsafeMove),
		errors.Is(err, door.ErrServoDisabled):
		return http.StatusConflict
	case errors.Is(err, process.ErrBusy),
		errors.Is(err, process.ErrNotRunning),
		errors.Is(err, calibration.ErrWorkerBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// commandError reports a rejected command. Client-side rejections are not logged as errors.
func (h *Handler) commandError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logAndJSONError(c, code, err.Error(), logKey, err, kv...)
		return
	}
	if h.log != nil {
		h.log.Infow(logKey, append([]interface{}{"err", err}, kv...)...)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// Respond with a status and include the current oven status if available (best-effort).
func (h *Handler) respondWithStatus(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	if h.services.Monitoring != nil {
		if st, err := h.services.GetStatus(c.Request.Context()); err == nil {
			resp["oven"] = st
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SetTargetRequest is the body of POST /api/v1/oven/target.
type SetTargetRequest struct {
	// Setpoint in Celsius; 0 idles the heaters
	TargetTempC *float64 `json:"target_temp_c" binding:"required" example:"150"`
}

// SetDoorRequest is the body of POST /api/v1/oven/door.
type SetDoorRequest struct {
	// Vent aperture, 0 closed .. 100 open
	Percent *float64 `json:"percent" binding:"required" example:"40"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Oven status
// @Description  Sensors, control loop, door, calibration and process in one snapshot
// @Tags         oven
// @Produce      json
// @Success      200  {object}  models.OvenStatus
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/oven/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.GetStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "oven_get_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Set loop target
// @Tags         oven
// @Accept       json
// @Produce      json
// @Param        body  body      SetTargetRequest  true  "Target"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/oven/target [post]
// @Security     BearerAuth
func (h *Handler) setTarget(c *gin.Context) {
	var req SetTargetRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.SetTargetTemperature(c.Request.Context(), *req.TargetTempC); err != nil {
		h.commandError(c, "oven_set_target_failed", err, "target_c", *req.TargetTempC)
		return
	}
	h.respondWithStatus(c, statusAccepted, gin.H{"target_temp_c": *req.TargetTempC})
}

// @Summary      Set door aperture
// @Tags         oven
// @Accept       json
// @Produce      json
// @Param        body  body      SetDoorRequest  true  "Aperture"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/oven/door [post]
// @Security     BearerAuth
func (h *Handler) setDoor(c *gin.Context) {
	var req SetDoorRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.SetDoorPosition(c.Request.Context(), *req.Percent); err != nil {
		h.commandError(c, "oven_set_door_failed", err, "percent", *req.Percent)
		return
	}
	h.respondWithStatus(c, statusAccepted, gin.H{"percent": *req.Percent})
}

// @Summary      Emergency stop
// @Description  Cancels any run or calibration and zeroes heaters and cooling
// @Tags         oven
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/oven/stop [post]
// @Security     BearerAuth
func (h *Handler) stopAll(c *gin.Context) {
	if err := h.services.StopAll(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, err.Error(), "oven_stop_failed", err)
		return
	}
	h.respondWithStatus(c, statusStopped, gin.H{})
}

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AngleRequest carries a raw servo angle in degrees.
type AngleRequest struct {
	Angle *float64 `json:"angle" binding:"required" example:"92.5"`
}

// JogRequest nudges the servo by a signed number of degrees.
type JogRequest struct {
	Delta *float64 `json:"delta" binding:"required" example:"-1"`
}

// @Summary      Calibration progress
// @Tags         calibration
// @Produce      json
// @Success      200  {object}  models.CalibrationState
// @Router       /api/v1/calibration [get]
// @Security     BearerAuth
func (h *Handler) getCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.CalibrationState(c.Request.Context()))
}

// @Summary      Active calibration profile
// @Tags         calibration
// @Produce      json
// @Success      200  {object}  models.CalibrationProfile
// @Router       /api/v1/calibration/profile [get]
// @Security     BearerAuth
func (h *Handler) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.CalibrationProfile(c.Request.Context()))
}

// @Summary      Expected heating and cooling rates
// @Description  Looked up from the calibrated tables at the current front temperature
// @Tags         calibration
// @Produce      json
// @Param        percent  query     number  true  "Power or cooling level, 0..100"
// @Success      200      {object}  service.RateEstimate
// @Failure      400      {object}  map[string]string
// @Router       /api/v1/calibration/rates [get]
// @Security     BearerAuth
func (h *Handler) getRates(c *gin.Context) {
	percent, err := strconv.ParseFloat(c.Query("percent"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "percent must be a number"})
		return
	}
	est, err := h.services.ExpectedRates(c.Request.Context(), percent)
	if err != nil {
		h.commandError(c, "calibration_rates_failed", err, "percent", percent)
		return
	}
	c.JSON(http.StatusOK, est)
}

// @Summary      Start a calibration procedure
// @Tags         calibration
// @Produce      json
// @Param        mode  path      string  true  "Procedure"  Enums(sensor,thermal,door)
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/calibration/start/{mode} [post]
// @Security     BearerAuth
func (h *Handler) startCalibration(c *gin.Context) {
	mode := c.Param("mode")
	var start func(context.Context) error
	switch mode {
	case "sensor":
		start = h.services.StartSensorCalibration
	case "thermal":
		start = h.services.StartThermalCalibration
	case "door":
		start = h.services.StartDoorCalibration
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown calibration mode " + strconv.Quote(mode)})
		return
	}
	if err := start(c.Request.Context()); err != nil {
		h.commandError(c, "calibration_start_failed", err, "mode", mode)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted, "mode": mode})
}

// @Summary      Stop the active calibration
// @Tags         calibration
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/calibration/stop [post]
// @Security     BearerAuth
func (h *Handler) stopCalibration(c *gin.Context) {
	if err := h.services.StopCalibration(c.Request.Context()); err != nil {
		h.commandError(c, "calibration_stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStopped})
}

// angleCommand binds an AngleRequest and applies fn.
func (h *Handler) angleCommand(c *gin.Context, logKey string, fn func(context.Context, float64) error) {
	var req AngleRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := fn(c.Request.Context(), *req.Angle); err != nil {
		h.commandError(c, logKey, err, "angle", *req.Angle)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted, "angle": *req.Angle})
}

// @Summary      Record the open end of the door
// @Tags         calibration
// @Accept       json
// @Produce      json
// @Param        body  body      AngleRequest  true  "Angle"
// @Success      200   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/calibration/door/open [post]
// @Security     BearerAuth
func (h *Handler) setDoorOpen(c *gin.Context) {
	h.angleCommand(c, "calibration_door_open_failed", h.services.SetDoorOpenPosition)
}

// @Summary      Record the closed end of the door
// @Tags         calibration
// @Accept       json
// @Produce      json
// @Param        body  body      AngleRequest  true  "Angle"
// @Success      200   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/calibration/door/closed [post]
// @Security     BearerAuth
func (h *Handler) setDoorClosed(c *gin.Context) {
	h.angleCommand(c, "calibration_door_closed_failed", h.services.SetDoorClosedPosition)
}

// @Summary      Move the servo to a raw angle during door calibration
// @Tags         calibration
// @Accept       json
// @Produce      json
// @Param        body  body      AngleRequest  true  "Angle"
// @Success      200   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/calibration/door/raw [post]
// @Security     BearerAuth
func (h *Handler) moveDoorRaw(c *gin.Context) {
	h.angleCommand(c, "calibration_door_raw_failed", h.services.MoveDoorRaw)
}

// @Summary      Jog the servo during door calibration
// @Tags         calibration
// @Accept       json
// @Produce      json
// @Param        body  body      JogRequest  true  "Delta"
// @Success      200   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/calibration/door/jog [post]
// @Security     BearerAuth
func (h *Handler) jogDoor(c *gin.Context) {
	var req JogRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.JogDoor(c.Request.Context(), *req.Delta); err != nil {
		h.commandError(c, "calibration_door_jog_failed", err, "delta", *req.Delta)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusAccepted, "delta": *req.Delta})
}

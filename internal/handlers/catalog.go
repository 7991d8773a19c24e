package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// @Summary      List reflow curves
// @Tags         curves
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, curves"
// @Router       /api/v1/curves [get]
// @Security     BearerAuth
func (h *Handler) listCurves(c *gin.Context) {
	curves := h.services.ListCurves(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"count": len(curves), "curves": curves})
}

// @Summary      Get a reflow curve
// @Tags         curves
// @Produce      json
// @Param        name  path      string  true  "Curve name"
// @Success      200   {object}  models.ReflowCurve
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/curves/{name} [get]
// @Security     BearerAuth
func (h *Handler) getCurve(c *gin.Context) {
	curve, err := h.services.GetCurve(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.commandError(c, "curve_get_failed", err, "name", c.Param("name"))
		return
	}
	c.JSON(http.StatusOK, curve)
}

// @Summary      Reflow run history
// @Tags         runs
// @Produce      json
// @Param        limit  query     int  false  "Most recent N runs"  default(50)
// @Success      200    {object}  map[string]interface{}  "count, runs"
// @Failure      400    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/runs [get]
// @Security     BearerAuth
func (h *Handler) listRuns(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := h.services.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load runs", "runs_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

// @Summary      One reflow run
// @Tags         runs
// @Produce      json
// @Param        id   path      string  true  "Run id"
// @Success      200  {object}  models.RunRecord
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/runs/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRun(c *gin.Context) {
	run, err := h.services.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.commandError(c, "run_get_failed", err, "id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, run)
}

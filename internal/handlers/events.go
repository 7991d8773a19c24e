package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reflow_oven/internal/service"
)

const (
	errFromInvalid  = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid    = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errLimitInvalid = "invalid 'limit'; use a positive integer"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      List journaled bus events
// @Description  Filter by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'), topic and event name. If 'to' is date-only, it is treated as end-of-day inclusive.
// @Tags         events
// @Produce      json
// @Param        from   query     string  false  "Start of range"  example(2025-08-01)
// @Param        to     query     string  false  "End of range. Date-only treated as end of day."  example(2025-08-31)
// @Param        topic  query     string  false  "Topic"  Enums(door,control,calibration,process,system)
// @Param        name   query     string  false  "Event name"  example(DOOR_SAFETY_STOP)
// @Param        limit  query     int     false  "Maximum rows"  default(500)
// @Success      200    {object}  map[string]interface{}  "count, events"
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/events [get]
// @Security     BearerAuth
func (h *Handler) getEvents(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		from  time.Time
		to    time.Time
		limit int
		err   error
	)
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	// If only a date is provided, make 'to' end-of-day inclusive.
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if qs := c.Query("limit"); qs != "" {
		limit, err = strconv.Atoi(qs)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}
	entries, err := h.services.EventLog.List(ctx, service.LogFilter{
		From:  from,
		To:    to,
		Topic: c.Query("topic"),
		Name:  c.Query("name"),
		Limit: limit,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load events", "events_list_failed", err,
			"from", from, "to", to, "topic", c.Query("topic"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(entries),
		"events": entries,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	// Try multiple accepted formats, normalizing to UTC.
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}

// Package handler holds the gin handler factories of the dashboard API.
package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/response"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "Invalid request body")
		return false
	}
	return true
}

// serverError records err for the request log and answers with message.
func serverError(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	response.InternalError(c, message)
}

// actor names whoever is behind the request: the Discord user, or the
// operator holding the master key.
func actor(c *gin.Context) (id, name string) {
	if u := middleware.CurrentUser(c); u != nil {
		return u.DiscordID, u.Username
	}
	return "api-key", "API key"
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v == 0 {
		return def
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Health answers liveness checks.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func Status(version, environment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "running",
			"version":     version,
			"environment": environment,
		})
	}
}

// NotFound answers unknown API routes.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.NotFound(c, "Route "+c.Request.URL.Path+" not found")
	}
}

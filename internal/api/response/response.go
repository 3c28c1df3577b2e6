// Package response writes the JSON envelope every API reply is wrapped in.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every API response. Success replies carry Message
// and Data, failures carry Error and optionally Details.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

func OK(c *gin.Context, message string, data interface{}) {
	Success(c, http.StatusOK, message, data)
}

func Created(c *gin.Context, message string, data interface{}) {
	Success(c, http.StatusCreated, message, data)
}

func Success(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success:    true,
		Message:    message,
		StatusCode: status,
		Data:       data,
	})
}

// Fail writes an error envelope and aborts the handler chain.
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Error:      message,
		StatusCode: status,
	})
}

func FailDetails(c *gin.Context, status int, message string, details interface{}) {
	c.AbortWithStatusJSON(status, Envelope{
		Error:      message,
		StatusCode: status,
		Details:    details,
	})
}

func BadRequest(c *gin.Context, message string) { Fail(c, http.StatusBadRequest, message) }

func NotFound(c *gin.Context, message string) { Fail(c, http.StatusNotFound, message) }

func Forbidden(c *gin.Context, message string) { Fail(c, http.StatusForbidden, message) }

func Unauthorized(c *gin.Context, message string) { Fail(c, http.StatusUnauthorized, message) }

func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, message)
}

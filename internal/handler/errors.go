package handler

import (
	"errors"
	"net/http"

	"mirchi_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// ErrorResponder renders service errors as JSON bodies with a message field
type ErrorResponder struct {
	// ExposeDetail adds the internal error text to 500 bodies
	ExposeDetail bool
}

func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation, service.KindAuthState:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err and records it on the context for the request logger
func (r ErrorResponder) Respond(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *service.AppError
	if !errors.As(err, &appErr) || appErr.Kind == service.KindInternal {
		body := gin.H{"message": "Something went wrong"}
		if r.ExposeDetail {
			body["error"] = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		return
	}
	c.AbortWithStatusJSON(statusForKind(appErr.Kind), gin.H{"message": appErr.Message})
}

// NotFound answers unmatched routes
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
}

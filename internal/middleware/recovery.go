package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a panic into the generic 500 body. The panic value is only
// echoed back when exposeDetail is set.
func Recovery(log *zap.Logger, exposeDetail bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Error("panic recovered",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"))

			body := gin.H{"message": "Something went wrong"}
			if exposeDetail {
				body["error"] = fmt.Sprint(rec)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}

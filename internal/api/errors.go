package api

import (
	"net/http"

	"fullsound/internal/apperr"
	"fullsound/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindGateway:         http.StatusBadGateway,
	apperr.KindAuthorization:   http.StatusForbidden,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
}

// mapError converts an error into a status and a payload without internal details
func mapError(err error) (int, errorPayload) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		return http.StatusInternalServerError, errorPayload{Type: string(apperr.KindInternal), Message: "internal server error"}
	}
	return status, errorPayload{Type: string(kind), Message: apperr.Message(err)}
}

// errorHandlingMiddleware renders the last error recorded with abortWithError
func errorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		logger := util.LoggerFrom(c.Request.Context())
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", zap.Int("status", status), zap.Error(lastErr.Err))
		} else {
			logger.Debug("Request rejected", zap.Int("status", status), zap.Error(lastErr.Err))
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func abortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

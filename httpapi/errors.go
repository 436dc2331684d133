package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/Skryldev/image-host/errors"
)

// statusFor maps an error category onto an HTTP status.
func statusFor(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrWorkerPoolFull):
		return http.StatusServiceUnavailable
	}
	switch apperrors.CategoryOf(err) {
	case apperrors.CategoryNotFound:
		return http.StatusNotFound
	case apperrors.CategoryInvalid, apperrors.CategoryDecode, apperrors.CategoryConflict:
		return http.StatusBadRequest
	case apperrors.CategoryAuth:
		return http.StatusUnauthorized
	case apperrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// renderError writes {"detail": ...}. Server side failures are logged and
// reported with a generic message.
func renderError(c *gin.Context, log zerolog.Logger, err error) {
	status := statusFor(err)
	detail := apperrors.Detail(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("category", string(apperrors.CategoryOf(err))).
			Msg("request failed")
		detail = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

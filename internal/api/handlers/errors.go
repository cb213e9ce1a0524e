package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/roster"
	"github.com/your-org/coachwatch/internal/surveillance"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, identity.ErrInvalidEmbeddingDimension),
		errors.Is(err, identity.ErrInvalidIdentity),
		errors.Is(err, identity.ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, surveillance.ErrUnknownCamera):
		return http.StatusNotFound
	case errors.Is(err, surveillance.ErrModelUnavailable),
		errors.Is(err, roster.ErrBackupUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inboxforge/core/internal/apperr"
)

// respondError maps an apperr.Kind to the status code §7 assigns it and
// writes the JSON error body. Kinds that never reach the HTTP boundary
// by design (ProviderTransient, ProviderStaleCursor) fall through to
// 500 since seeing one here means an internal invariant broke.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindIntegrityFailure:
		status = http.StatusInternalServerError
	case apperr.KindAiFailure:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

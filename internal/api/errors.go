package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodm/internal/chaterr"
	"go.uber.org/zap"
)

// respondError maps an engine error onto an HTTP status. Typed chat
// errors carry their user-facing message through; anything untyped is
// an internal fault and gets a generic body so we never leak SQL or
// driver detail to the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError

	switch chaterr.KindOf(err) {
	case chaterr.KindValidation, chaterr.KindSelfReference:
		status = http.StatusBadRequest
	case chaterr.KindNotFound:
		status = http.StatusNotFound
	case chaterr.KindDuplicate:
		status = http.StatusConflict
	case chaterr.KindAuth:
		status = http.StatusUnauthorized
	case chaterr.KindUpload, chaterr.KindSubscription:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	c.JSON(status, gin.H{"error": chaterr.Message(err, "request failed")})
}

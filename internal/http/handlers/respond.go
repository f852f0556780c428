package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/atelier-backend/internal/platform/apierr"
)

// respondError renders any error as the shared {code, message} shape, using
// the taxonomy status when the error carries one.
func respondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	c.JSON(ae.Status, gin.H{
		"code":    ae.Code,
		"message": ae.Error(),
	})
}

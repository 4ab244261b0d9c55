package video

import (
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// scope returns the owner the caller is limited to. Admins see every video
// so their scope is empty.
func scope(c *gin.Context) string {
	userID, role := middleware.Caller(c)
	if role == model.RoleAdmin {
		return ""
	}

	return userID
}

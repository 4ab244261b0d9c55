package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/store"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Fetch(c *gin.Context, d *internal.Deps) {
	v, ok := visible(c, d)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, v)
}

// visible loads the :id video if the caller may see it. On failure the
// response has already been written.
func visible(c *gin.Context, d *internal.Deps) (*model.Video, bool) {
	requestID := c.GetString("requestID")

	v, err := d.Videos.FindVisible(c.Request.Context(), c.Param("id"), scope(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Video not found",
				"requestID": requestID,
			})
			return nil, false
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch video", zap.String("requestID", requestID), zap.Error(err))
		return nil, false
	}

	return v, true
}

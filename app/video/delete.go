package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/store"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Delete(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")

	v, ok := visible(c, d)
	if !ok {
		return
	}

	err := d.Videos.Delete(c.Request.Context(), v.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete video record", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if err := os.Remove(v.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("Failed to remove video file", zap.String("videoID", v.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Video deleted successfully",
	})
}

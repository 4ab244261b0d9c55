package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/store"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func List(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")

	f := store.ListFilter{
		OwnerID:     scope(c),
		Status:      model.Status(c.Query("status")),
		Sensitivity: model.Sensitivity(c.Query("sensitivity")),
	}

	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid status filter",
			"requestID": requestID,
		})
		return
	}

	if f.Sensitivity != "" && !f.Sensitivity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid sensitivity filter",
			"requestID": requestID,
		})
		return
	}

	videos, err := d.Videos.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list videos", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
	})
}

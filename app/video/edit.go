package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/store"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type editRequest struct {
	Title *string `json:"title"`
}

func Edit(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	v, ok := visible(c, d)
	if !ok {
		return
	}

	// An empty title keeps the current one
	if req.Title != nil {
		if title := strings.TrimSpace(*req.Title); title != "" && title != v.Title {
			err := d.Videos.Update(c.Request.Context(), v.ID, store.Fields{store.FieldTitle: title})
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":     "Internal server error",
					"requestID": requestID,
				})

				zap.L().Error("Failed to update video title", zap.String("requestID", requestID), zap.Error(err))
				return
			}
		}
	}

	fresh, ok := visible(c, d)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, fresh)
}

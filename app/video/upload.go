// Package video contains the handlers of the /api/videos endpoints
package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/pkg/middleware"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func Upload(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")
	userID, _ := middleware.Caller(c)

	fh, err := c.FormFile("video")
	if err != nil {
		switch {
		case middleware.IsBodyTooLarge(err):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "File size exceeds limit",
				"requestID": requestID,
			})
		case errors.Is(err, http.ErrMissingFile):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "No video file uploaded",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Invalid multipart form",
				"requestID": requestID,
			})

			zap.L().Debug("Failed to parse multipart form", zap.String("requestID", requestID), zap.Error(err))
		}
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Title is required",
			"requestID": requestID,
		})
		return
	}

	code, a, err := admit(fh, d.Upload)
	if err != nil {
		if code == http.StatusInternalServerError {
			c.JSON(code, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to inspect uploaded file", zap.String("requestID", requestID), zap.Error(err))
			return
		}

		c.JSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	id := uuid.NewString()
	dst := filepath.Join(d.Upload.Dir, id+a.Ext)

	if err := c.SaveUploadedFile(fh, dst); err != nil {
		os.Remove(dst)

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to store uploaded file", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	v := &model.Video{
		ID:           id,
		OwnerID:      userID,
		Title:        title,
		FilePath:     dst,
		OriginalName: filepath.Base(fh.Filename),
		MimeType:     a.MimeType,
		Size:         fh.Size,
		Status:       model.StatusUploading,
	}

	if err := d.Videos.Create(c.Request.Context(), v); err != nil {
		os.Remove(dst)

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create video record", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if err := d.Queue.Submit(v.ID); err != nil {
		if err := d.Videos.Delete(c.Request.Context(), v.ID); err != nil {
			zap.L().Error("Failed to remove refused video record", zap.String("videoID", v.ID), zap.Error(err))
		}
		os.Remove(dst)

		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Processing queue is full. Please wait a moment before trying again",
			"requestID": requestID,
		})

		zap.L().Warn("Processing queue refused video", zap.String("videoID", v.ID), zap.Error(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"videoId": v.ID,
		"message": "Upload started. Processing in background.",
	})
}

package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/metrics"
	"bitwise74/pulsestream/internal/stream"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Stream(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")

	v, ok := visible(c, d)
	if !ok {
		return
	}

	defer func() {
		metrics.StreamResponsesTotal.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}()

	err := d.Responder.Serve(c.Writer, c.Request, v)
	if err == nil {
		return
	}

	// Headers are out, nothing left to tell the client
	if c.Writer.Written() || errors.Is(err, stream.ErrStreamAborted) {
		zap.L().Debug("Stream ended early", zap.String("videoID", v.ID), zap.Error(err))
		c.Abort()
		return
	}

	switch {
	case errors.Is(err, stream.ErrNotReady):
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "Video is not ready for streaming",
			"requestID": requestID,
		})
	case errors.Is(err, stream.ErrFileGone):
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Video file not found",
			"requestID": requestID,
		})

		zap.L().Warn("Completed video has no file", zap.String("videoID", v.ID))
	case errors.Is(err, stream.ErrMalformedRange):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed Range header",
			"requestID": requestID,
		})
	case errors.Is(err, stream.ErrUnsatisfiableRange):
		c.JSON(http.StatusRequestedRangeNotSatisfiable, gin.H{
			"error":     "Requested range not satisfiable",
			"requestID": requestID,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to stream video", zap.String("requestID", requestID), zap.Error(err))
	}
}

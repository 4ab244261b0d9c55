package video

import (
	"bitwise74/pulsestream/internal"
	"bitwise74/pulsestream/internal/broadcast"
	"bitwise74/pulsestream/pkg/middleware"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var pingInterval = 25 * time.Second

// Events streams the caller's video:progress events as Server-Sent Events
func Events(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")
	userID, _ := middleware.Caller(c)
	ctx := c.Request.Context()

	sub, err := d.Events.Subscribe(ctx, userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Event stream unavailable",
			"requestID": requestID,
		})

		zap.L().Error("Failed to subscribe to events", zap.String("userID", userID), zap.Error(err))
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	// Tells the client the subscription is live
	io.WriteString(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}

			c.SSEvent(broadcast.EventName, ev)
			return true
		case <-ping.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}

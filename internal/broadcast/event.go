// Package broadcast delivers pipeline progress events to the live
// connections of a video's owner. Delivery is at-most-once: nothing is
// stored, so a client that was offline must re-fetch its videos.
package broadcast

import (
	"bitwise74/pulsestream/internal/model"
	"context"
	"errors"
)

// EventName is the name clients listen for
const EventName = "video:progress"

var ErrClosed = errors.New("broadcaster closed")

type Event struct {
	VideoID     string             `json:"videoId"`
	Status      model.Status       `json:"status"`
	Progress    *int               `json:"progress"`
	Sensitivity *model.Sensitivity `json:"sensitivity"`
	Duration    *int64             `json:"duration,omitempty"`
	Error       *string            `json:"error,omitempty"`
}

// Channel returns the name of the channel an owner's connections join
func Channel(ownerID string) string {
	return "user:" + ownerID
}

type Broadcaster interface {
	// Publish sends ev to every current subscriber of ownerID's channel
	Publish(ctx context.Context, ownerID string, ev Event) error
	// Subscribe joins ownerID's channel. The subscription must be closed.
	Subscribe(ctx context.Context, ownerID string) (*Subscription, error)
}

// Subscription receives the events published to one channel until it's
// closed. C is closed when the subscription ends.
type Subscription struct {
	C     <-chan Event
	close func()
}

func (s *Subscription) Close() {
	s.close()
}

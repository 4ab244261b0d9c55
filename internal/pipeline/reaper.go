package pipeline

import (
	"bitwise74/pulsestream/internal/broadcast"
	"bitwise74/pulsestream/internal/metrics"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/store"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const reapedMessage = "processing timed out"

type ReaperStore interface {
	FindStale(ctx context.Context, t time.Time) ([]model.Video, error)
	Transition(ctx context.Context, id string, from model.Status, f store.Fields) error
}

// Reaper fails records that were left in processing, e.g. by a crash
// mid-stage. Videos the queue still holds are never touched.
type Reaper struct {
	store      ReaperStore
	events     broadcast.Broadcaster
	queue      interface{ Running(id string) bool }
	staleAfter time.Duration
	now        func() time.Time
}

func NewReaper(s ReaperStore, b broadcast.Broadcaster, q interface{ Running(id string) bool }, staleAfter time.Duration) *Reaper {
	return &Reaper{
		store:      s,
		events:     b,
		queue:      q,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start sweeps every interval until ctx is done
func (r *Reaper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	zap.L().Debug("Stale video reaper attached", zap.Duration("tick_every", interval), zap.Duration("stale_after", r.staleAfter))

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Sweep fails every stale record once and returns how many were failed
func (r *Reaper) Sweep(ctx context.Context) int {
	stale, err := r.store.FindStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		zap.L().Error("Failed to query db for stale videos", zap.Error(err))
		return 0
	}

	reaped := 0
	for _, v := range stale {
		if r.queue != nil && r.queue.Running(v.ID) {
			continue
		}

		msg := reapedMessage
		err := r.store.Transition(ctx, v.ID, model.StatusProcessing, store.Fields{
			store.FieldStatus:      model.StatusFailed,
			store.FieldError:       &msg,
			store.FieldSensitivity: nil,
		})
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				zap.L().Error("Failed to fail stale video", zap.String("video_id", v.ID), zap.Error(err))
			}
			continue
		}

		reaped++
		metrics.PipelineRunsTotal.WithLabelValues("reaped").Inc()
		zap.L().Warn("Failed stale video", zap.String("video_id", v.ID), zap.Time("last_update", v.UpdatedAt))

		err = r.events.Publish(ctx, v.OwnerID, broadcast.Event{
			VideoID: v.ID,
			Status:  model.StatusFailed,
			Error:   &msg,
		})
		if err != nil {
			zap.L().Warn("Failed to broadcast progress event", zap.String("video_id", v.ID), zap.Error(err))
		}
	}

	return reaped
}

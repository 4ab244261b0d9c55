// Package pipeline drives uploaded videos from uploading to a terminal
// status: probe the duration, normalize the container, classify, finish.
package pipeline

import (
	"bitwise74/pulsestream/internal/broadcast"
	"bitwise74/pulsestream/internal/media"
	"bitwise74/pulsestream/internal/metrics"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/store"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Progress checkpoints clients can rely on
const (
	ProgressStarted    = 0
	ProgressProbed     = 25
	ProgressClassified = 80
	ProgressDone       = 100
)

var (
	ErrSourceMissing    = errors.New("video file not found")
	ErrSourceUnreadable = errors.New("video file is unreadable")
)

// Shown to clients when the cause is internal
const genericFailure = "processing failed"

type Store interface {
	FindByID(ctx context.Context, id string) (*model.Video, error)
	Update(ctx context.Context, id string, f store.Fields) error
	// Transition applies f only while the record is still in from and
	// returns store.ErrNotFound otherwise
	Transition(ctx context.Context, id string, from model.Status, f store.Fields) error
}

type Pipeline struct {
	store  Store
	tool   media.Tool
	events broadcast.Broadcaster
}

func New(s Store, t media.Tool, b broadcast.Broadcaster) *Pipeline {
	return &Pipeline{
		store:  s,
		tool:   t,
		events: b,
	}
}

// Run processes a single video. It never returns an error: the outcome is
// the persisted status and the events sent to the owner. Run must not be
// called twice at once for the same id, the Queue makes sure of that.
func (p *Pipeline) Run(ctx context.Context, videoID string) {
	log := zap.L().With(zap.String("video_id", videoID))

	v, err := p.store.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("Video not found, nothing to process")
		} else {
			log.Error("Failed to load video", zap.Error(err))
		}

		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		return
	}

	if v.Status != model.StatusUploading {
		log.Warn("Video is not waiting for processing", zap.String("status", string(v.Status)))
		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		return
	}

	// Another instance may resume the same record, only one claim wins
	err = p.store.Transition(ctx, videoID, model.StatusUploading, store.Fields{
		store.FieldStatus:      model.StatusProcessing,
		store.FieldProgress:    ProgressStarted,
		store.FieldSensitivity: nil,
		store.FieldError:       nil,
	})
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Video was claimed by another run")
		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		return
	}
	if err != nil {
		// Writing failed here would skip processing, leave it uploading
		log.Error("Failed to mark video as processing", zap.Error(err))
		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		return
	}

	p.emit(ctx, log, v.OwnerID, broadcast.Event{
		VideoID:  videoID,
		Status:   model.StatusProcessing,
		Progress: intPtr(ProgressStarted),
	})

	log.Debug("Processing started")

	if err := p.process(ctx, log, v); err != nil {
		p.fail(ctx, log, v, err)
		return
	}

	metrics.PipelineRunsTotal.WithLabelValues("completed").Inc()
	log.Info("Video processed")
}

func (p *Pipeline) process(ctx context.Context, log *zap.Logger, v *model.Video) error {
	if _, err := os.Stat(v.FilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrSourceMissing
		}

		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	var duration *int64

	err := stage("probe", func() (err error) {
		duration, err = p.tool.ProbeDuration(ctx, v.FilePath)
		return err
	})
	if err != nil {
		return err
	}

	err = p.store.Update(ctx, v.ID, store.Fields{
		store.FieldDuration: duration,
		store.FieldProgress: ProgressProbed,
	})
	if err != nil {
		return err
	}

	p.emit(ctx, log, v.OwnerID, broadcast.Event{
		VideoID:  v.ID,
		Status:   model.StatusProcessing,
		Progress: intPtr(ProgressProbed),
		Duration: duration,
	})

	err = stage("normalize", func() error {
		return p.tool.NormalizeContainer(ctx, v.FilePath)
	})
	if err != nil {
		return err
	}

	// Normalizing can take minutes, don't trust the copy loaded at the start
	fresh, err := p.store.FindByID(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("failed to reload video, %w", err)
	}

	sensitivity := Classify(fresh.Duration, fresh.Size)

	err = p.store.Update(ctx, v.ID, store.Fields{
		store.FieldSensitivity: &sensitivity,
		store.FieldProgress:    ProgressClassified,
	})
	if err != nil {
		return err
	}

	p.emit(ctx, log, v.OwnerID, broadcast.Event{
		VideoID:     v.ID,
		Status:      model.StatusProcessing,
		Progress:    intPtr(ProgressClassified),
		Sensitivity: &sensitivity,
	})

	err = p.store.Update(ctx, v.ID, store.Fields{
		store.FieldStatus:   model.StatusCompleted,
		store.FieldProgress: ProgressDone,
	})
	if err != nil {
		return err
	}

	p.emit(ctx, log, v.OwnerID, broadcast.Event{
		VideoID:     v.ID,
		Status:      model.StatusCompleted,
		Progress:    intPtr(ProgressDone),
		Sensitivity: &sensitivity,
	})

	return nil
}

func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, v *model.Video, cause error) {
	msg := clientMessage(cause)

	log.Error("Video processing failed", zap.Error(cause))

	err := p.store.Update(ctx, v.ID, store.Fields{
		store.FieldStatus:      model.StatusFailed,
		store.FieldError:       &msg,
		store.FieldSensitivity: nil,
	})
	if err != nil {
		// Not retried, the reaper eventually fails the record
		log.Error("Failed to record processing failure", zap.Error(err))
		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		return
	}

	p.emit(ctx, log, v.OwnerID, broadcast.Event{
		VideoID: v.ID,
		Status:  model.StatusFailed,
		Error:   &msg,
	})

	metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
}

func (p *Pipeline) emit(ctx context.Context, log *zap.Logger, ownerID string, ev broadcast.Event) {
	if err := p.events.Publish(ctx, ownerID, ev); err != nil {
		log.Warn("Failed to broadcast progress event", zap.Error(err))
	}
}

// clientMessage is what gets persisted and broadcast for cause. The full
// error, which may name stored paths, only goes to the log.
func clientMessage(cause error) string {
	switch {
	case errors.Is(cause, ErrSourceMissing):
		return ErrSourceMissing.Error()
	case errors.Is(cause, ErrSourceUnreadable):
		return ErrSourceUnreadable.Error()
	case errors.Is(cause, media.ErrProbeFailed), errors.Is(cause, media.ErrNormalizeFailed):
		// media keeps these path free
		return cause.Error()
	default:
		return genericFailure
	}
}

func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.PipelineStageSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())

	return err
}

func intPtr(v int) *int {
	return &v
}

package pipeline

import (
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/store"
	"context"

	"go.uber.org/zap"
)

type Lister interface {
	List(ctx context.Context, f store.ListFilter) ([]model.Video, error)
}

type Submitter interface {
	Submit(id string) error
}

// Resume resubmits videos still waiting for processing, which happens when
// the previous process stopped with them queued. Returns how many were
// resubmitted.
func Resume(ctx context.Context, s Lister, q Submitter) int {
	waiting, err := s.List(ctx, store.ListFilter{Status: model.StatusUploading})
	if err != nil {
		zap.L().Error("Failed to query db for waiting videos", zap.Error(err))
		return 0
	}

	resumed := 0
	for _, v := range waiting {
		if err := q.Submit(v.ID); err != nil {
			zap.L().Warn("Failed to resubmit waiting video", zap.String("video_id", v.ID), zap.Error(err))
			continue
		}

		resumed++
	}

	if resumed > 0 {
		zap.L().Info("Resumed waiting videos", zap.Int("count", resumed))
	}

	return resumed
}

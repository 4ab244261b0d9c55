package pipeline

import (
	"bitwise74/pulsestream/internal/metrics"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull     = errors.New("processing queue is full")
	ErrAlreadyQueued = errors.New("video is already being processed")
	ErrQueueClosed   = errors.New("processing queue closed")
)

type Runner interface {
	Run(ctx context.Context, videoID string)
}

// Queue runs pipelines on a fixed number of workers. A video id can be
// queued or running only once at a time.
type Queue struct {
	runner  Runner
	jobs    chan string
	workers int

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewQueue creates a queue holding at most size waiting videos
func NewQueue(r Runner, workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}

	zap.L().Debug("Initializing processing queue", zap.Int("workers", workers), zap.Int("size", size))

	return &Queue{
		runner:   r,
		jobs:     make(chan string, size),
		workers:  workers,
		inflight: make(map[string]struct{}),
	}
}

func (q *Queue) Start() {
	for range q.workers {
		q.wg.Add(1)
		go q.worker()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for id := range q.jobs {
		q.run(id)
	}
}

func (q *Queue) run(id string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Pipeline panicked", zap.String("video_id", id), zap.Any("panic", r))
		}

		q.mu.Lock()
		delete(q.inflight, id)
		q.mu.Unlock()

		metrics.PipelineQueueDepth.Dec()
	}()

	// Started runs are never cancelled
	q.runner.Run(context.Background(), id)
}

// Submit schedules a pipeline run for the video
func (q *Queue) Submit(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if _, ok := q.inflight[id]; ok {
		return ErrAlreadyQueued
	}

	select {
	case q.jobs <- id:
		q.inflight[id] = struct{}{}
		metrics.PipelineQueueDepth.Inc()

		zap.L().Debug("New pipeline run enqueued", zap.String("video_id", id), zap.Int("inflight", len(q.inflight)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Running reports whether id is queued or being processed
func (q *Queue) Running(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.inflight[id]
	return ok
}

// Stop refuses new work and waits for queued and running pipelines to end
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

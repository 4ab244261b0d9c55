// Package metrics provides Prometheus metrics for the processing pipeline,
// the broadcaster and the stream responder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No video or user ids in labels

var (
	// PipelineRunsTotal counts finished pipeline runs by terminal status.
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsestream_pipeline_runs_total",
		Help: "Total number of pipeline runs, by result (completed/failed/aborted/reaped).",
	}, []string{"result"})

	// PipelineStageSeconds observes how long each pipeline stage took.
	PipelineStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulsestream_pipeline_stage_seconds",
		Help:    "Duration of pipeline stages in seconds, by stage.",
		Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 300, 900},
	}, []string{"stage"})

	// PipelineQueueDepth tracks videos waiting for or held by a worker.
	PipelineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsestream_pipeline_queue_depth",
		Help: "Number of videos queued or being processed.",
	})

	// BroadcastEventsTotal counts progress event deliveries by outcome.
	BroadcastEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsestream_broadcast_events_total",
		Help: "Total number of progress events, by result (delivered/published/dropped/error).",
	}, []string{"result"})

	// StreamResponsesTotal counts stream responses by HTTP status code.
	StreamResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsestream_stream_responses_total",
		Help: "Total number of stream responses, by status code.",
	}, []string{"code"})
)

package internal

import (
	"bitwise74/pulsestream/internal/broadcast"
	"bitwise74/pulsestream/internal/store"
	"bitwise74/pulsestream/internal/stream"
)

// Submitter hands an uploaded video to the processing pipeline
type Submitter interface {
	Submit(videoID string) error
}

type UploadConfig struct {
	Dir          string
	MaxSize      int64 // Bytes
	AllowedTypes []string
}

type Deps struct {
	Videos    *store.Videos
	Queue     Submitter
	Events    broadcast.Broadcaster
	Responder *stream.Responder
	Upload    UploadConfig
}

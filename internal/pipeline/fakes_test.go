package pipeline

import (
	"bitwise74/pulsestream/internal/broadcast"
	"bitwise74/pulsestream/internal/model"
	"bitwise74/pulsestream/internal/store"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store. failOn makes the nth write (1-based),
// counting both Update and Transition, return errInjected.
type memStore struct {
	mu      sync.Mutex
	videos  map[string]model.Video
	updates int
	failOn  map[int]bool
}

func newMemStore(videos ...model.Video) *memStore {
	s := &memStore{
		videos: make(map[string]model.Video),
		failOn: make(map[int]bool),
	}
	for _, v := range videos {
		s.videos[v.ID] = v
	}

	return s
}

func (s *memStore) FindByID(_ context.Context, id string) (*model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return &v, nil
}

func (s *memStore) Update(_ context.Context, id string, f store.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates++
	if s.failOn[s.updates] {
		return errInjected
	}

	v, ok := s.videos[id]
	if !ok {
		return store.ErrNotFound
	}

	apply(&v, f)
	s.videos[id] = v
	return nil
}

func (s *memStore) FindStale(_ context.Context, t time.Time) ([]model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Video
	for _, v := range s.videos {
		if v.Status == model.StatusProcessing && v.UpdatedAt.Before(t) {
			out = append(out, v)
		}
	}

	return out, nil
}

func (s *memStore) Transition(_ context.Context, id string, from model.Status, f store.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates++
	if s.failOn[s.updates] {
		return errInjected
	}

	v, ok := s.videos[id]
	if !ok || v.Status != from {
		return store.ErrNotFound
	}

	apply(&v, f)
	s.videos[id] = v
	return nil
}

func (s *memStore) get(t *testing.T, id string) model.Video {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[id]
	require.True(t, ok, "video %s missing", id)
	return v
}

func apply(v *model.Video, f store.Fields) {
	for k, val := range f {
		switch k {
		case store.FieldStatus:
			v.Status = val.(model.Status)
		case store.FieldProgress:
			v.Progress = val.(int)
		case store.FieldDuration:
			v.Duration, _ = val.(*int64)
		case store.FieldSensitivity:
			v.Sensitivity, _ = val.(*model.Sensitivity)
		case store.FieldError:
			v.Error, _ = val.(*string)
		}
	}
	v.UpdatedAt = time.Now()
}

type fakeTool struct {
	duration     *int64
	probeErr     error
	normalizeErr error

	mu         sync.Mutex
	normalized []string
}

func (f *fakeTool) ProbeDuration(context.Context, string) (*int64, error) {
	return f.duration, f.probeErr
}

func (f *fakeTool) NormalizeContainer(_ context.Context, p string) error {
	f.mu.Lock()
	f.normalized = append(f.normalized, p)
	f.mu.Unlock()

	return f.normalizeErr
}

type published struct {
	owner string
	event broadcast.Event
	// Record as persisted when the event went out
	persisted model.Video
}

// recorder captures every event together with the stored record at
// publish time
type recorder struct {
	store *memStore

	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(ctx context.Context, ownerID string, ev broadcast.Event) error {
	v, _ := r.store.FindByID(ctx, ev.VideoID)

	r.mu.Lock()
	defer r.mu.Unlock()

	p := published{owner: ownerID, event: ev}
	if v != nil {
		p.persisted = *v
	}
	r.events = append(r.events, p)
	return nil
}

func (r *recorder) Subscribe(context.Context, string) (*broadcast.Subscription, error) {
	return nil, errors.New("not supported")
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]published(nil), r.events...)
}

func sourceFile(t *testing.T, name string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, make([]byte, 1000), 0o644))
	return p
}

func uploadedVideo(id, owner, path string) model.Video {
	return model.Video{
		ID:           id,
		OwnerID:      owner,
		Title:        "clip",
		FilePath:     path,
		OriginalName: filepath.Base(path),
		MimeType:     "video/mp4",
		Size:         1000,
		Status:       model.StatusUploading,
		UpdatedAt:    time.Now(),
	}
}

func i64(v int64) *int64 {
	return &v
}

func (s *memStore) List(_ context.Context, f store.ListFilter) ([]model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Video{}
	for _, v := range s.videos {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		out = append(out, v)
	}

	return out, nil
}

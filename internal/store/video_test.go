package store

import (
	"bitwise74/pulsestream/db"
	"bitwise74/pulsestream/internal/model"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Videos {
	t.Helper()

	gdb, err := db.New("sqlite", ":memory:")
	require.NoError(t, err)

	return NewVideos(gdb)
}

func newVideo(owner string) *model.Video {
	return &model.Video{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Title:        "clip",
		FilePath:     "/tmp/clip.mp4",
		OriginalName: "clip.mp4",
		MimeType:     "video/mp4",
		Size:         1000,
		Status:       model.StatusUploading,
	}
}

func TestVideos_CreateFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := newVideo("alice")
	require.NoError(t, s.Create(ctx, v))

	got, err := s.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, model.StatusUploading, got.Status)
	assert.Nil(t, got.Duration)
	assert.Nil(t, got.Sensitivity)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVideos_FindVisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := newVideo("alice")
	require.NoError(t, s.Create(ctx, v))

	_, err := s.FindVisible(ctx, v.ID, "alice")
	assert.NoError(t, err)

	_, err = s.FindVisible(ctx, v.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindVisible(ctx, v.ID, "")
	assert.NoError(t, err)
}

func TestVideos_UpdateWritesNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := newVideo("alice")
	require.NoError(t, s.Create(ctx, v))

	var d int64 = 42
	safe := model.SensitivitySafe
	require.NoError(t, s.Update(ctx, v.ID, Fields{
		FieldDuration:    &d,
		FieldSensitivity: &safe,
		FieldProgress:    80,
	}))

	got, err := s.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Duration)
	assert.EqualValues(t, 42, *got.Duration)
	require.NotNil(t, got.Sensitivity)
	assert.Equal(t, model.SensitivitySafe, *got.Sensitivity)
	assert.Equal(t, 80, got.Progress)

	msg := "boom"
	require.NoError(t, s.Update(ctx, v.ID, Fields{
		FieldStatus:      model.StatusFailed,
		FieldSensitivity: nil,
		FieldError:       &msg,
	}))

	got, err = s.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Sensitivity)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)

	assert.ErrorIs(t, s.Update(ctx, "missing", Fields{FieldProgress: 1}), ErrNotFound)
}

func TestVideos_Transition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := newVideo("alice")
	v.Status = model.StatusProcessing
	require.NoError(t, s.Create(ctx, v))

	err := s.Transition(ctx, v.ID, model.StatusUploading, Fields{FieldStatus: model.StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Transition(ctx, v.ID, model.StatusProcessing, Fields{FieldStatus: model.StatusFailed})
	assert.NoError(t, err)

	got, err := s.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
}

func TestVideos_ListAndStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newVideo("alice")
	a.Status = model.StatusProcessing
	b := newVideo("bob")
	b.Status = model.StatusCompleted
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.List(ctx, ListFilter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	done, err := s.List(ctx, ListFilter{Status: model.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, b.ID, done[0].ID)

	stale, err := s.FindStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, a.ID, stale[0].ID)

	stale, err = s.FindStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestVideos_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := newVideo("alice")
	require.NoError(t, s.Create(ctx, v))
	require.NoError(t, s.Delete(ctx, v.ID))

	assert.ErrorIs(t, s.Delete(ctx, v.ID), ErrNotFound)
}

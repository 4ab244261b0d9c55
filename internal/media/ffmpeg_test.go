package media

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    *int64
		wantErr bool
	}{
		{name: "Whole", out: "12.000000\n", want: ptr(12)},
		{name: "RoundsUp", out: "12.6", want: ptr(13)},
		{name: "RoundsDown", out: "12.4", want: ptr(12)},
		{name: "NotAvailable", out: "N/A\n", want: nil},
		{name: "Empty", out: "  ", want: nil},
		{name: "FirstLineWins", out: "3.0\n9.0\n", want: ptr(3)},
		{name: "Garbage", out: "abc", wantErr: true},
		{name: "Negative", out: "-4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration(tt.out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizable(t *testing.T) {
	assert.True(t, Normalizable("/x/a.mp4"))
	assert.True(t, Normalizable("/x/a.MOV"))
	assert.False(t, Normalizable("/x/a.webm"))
	assert.False(t, Normalizable("/x/a.mkv"))
	assert.False(t, Normalizable("/x/a"))
}

func TestNormalizeContainer_SkipsOtherFormats(t *testing.T) {
	p := filepath.Join(t.TempDir(), "clip.webm")
	require.NoError(t, os.WriteFile(p, []byte("webm"), 0o644))

	// A binary that doesn't exist proves ffmpeg is never started
	f := NewFFmpeg("/nonexistent/ffmpeg", "/nonexistent/ffprobe", time.Second)
	require.NoError(t, f.NormalizeContainer(context.Background(), p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "webm", string(data))
}

func TestNormalizeContainer_FailureLeavesOriginal(t *testing.T) {
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false binary not available")
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(p, []byte("original"), 0o644))

	f := NewFFmpeg(falseBin, falseBin, time.Second)
	err = f.NormalizeContainer(context.Background(), p)
	require.ErrorIs(t, err, ErrNormalizeFailed)
	assert.NotContains(t, err.Error(), dir)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be removed")
}

func TestProbeDuration_ToolFailure(t *testing.T) {
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false binary not available")
	}

	f := NewFFmpeg(falseBin, falseBin, time.Second)
	_, err = f.ProbeDuration(context.Background(), "/does/not/matter.mp4")
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.NotContains(t, err.Error(), "/does/not/matter.mp4")
}

func TestToolReason(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		paths  []string
		want   string
	}{
		{
			name:   "PrefixedPath",
			stderr: "/srv/uploads/abc.mp4: Invalid data found when processing input\n",
			paths:  []string{"/srv/uploads/abc.mp4"},
			want:   "Invalid data found when processing input",
		},
		{
			name:   "LastLineWins",
			stderr: "[mov,mp4] moov atom not found\n/srv/uploads/abc.mp4: Invalid argument",
			paths:  []string{"/srv/uploads/abc.mp4"},
			want:   "Invalid argument",
		},
		{
			name:   "InlinePath",
			stderr: "Could not write header for output file /srv/uploads/.abc.mp4123 (incorrect codec parameters ?)",
			paths:  []string{"/srv/uploads/abc.mp4", "/srv/uploads/.abc.mp4123"},
			want:   "Could not write header for output file input (incorrect codec parameters ?)",
		},
		{
			name: "NoStderr",
			want: "exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toolReason(errors.New("exit status 1"), tt.stderr, tt.paths...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFFmpeg_RealTools(t *testing.T) {
	f := NewFFmpeg("", "", time.Minute)
	if err := f.Check(); err != nil {
		t.Skip("ffmpeg tools not installed")
	}

	p := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := exec.Command(f.FFmpegPath,
		"-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=64x64:rate=10",
		"-c:v", "mpeg4",
		p,
	).CombinedOutput()
	require.NoError(t, err, string(out))

	d, err := f.ProbeDuration(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.EqualValues(t, 2, *d)

	require.NoError(t, f.NormalizeContainer(context.Background(), p))

	d, err = f.ProbeDuration(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.EqualValues(t, 2, *d)

	_, err = f.ProbeDuration(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func ptr(v int64) *int64 {
	return &v
}

// Package media wraps the external ffprobe and ffmpeg binaries used to
// inspect and normalize uploaded videos
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

var (
	ErrProbeFailed     = errors.New("probe failed")
	ErrNormalizeFailed = errors.New("normalize failed")
)

// Tool is the set of media operations the pipeline depends on
type Tool interface {
	// ProbeDuration returns the container duration in whole seconds or nil
	// when the container does not report one.
	ProbeDuration(ctx context.Context, p string) (*int64, error)
	// NormalizeContainer rewrites p in place so playback can start before the
	// whole file is downloaded. Formats that don't need it are left alone.
	NormalizeContainer(ctx context.Context, p string) error
}

// Container formats whose index has to be moved to the front, mapped to the
// ffmpeg muxer that writes them
var normalizable = map[string]string{
	".mp4": "mp4",
	".mov": "mov",
}

type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

func NewFFmpeg(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &FFmpeg{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Timeout:     timeout,
	}
}

// Check makes sure both binaries can be found
func (f *FFmpeg) Check() error {
	for _, bin := range []string{f.FFmpegPath, f.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found, %w", bin, err)
		}
	}

	return nil
}

func (f *FFmpeg) ProbeDuration(ctx context.Context, p string) (*int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	zap.L().Debug("Running FFprobe to determine video duration", zap.String("path", p))

	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-i", p,
	)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		zap.L().Warn("FFprobe failed",
			zap.String("path", p),
			zap.String("stderr", stdErr.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s", ErrProbeFailed, toolReason(err, stdErr.String(), p))
	}

	d, err := parseDuration(stdOut.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	zap.L().Debug("FFprobe finished")
	return d, nil
}

// parseDuration reads ffprobe's format=duration output. ffprobe prints N/A
// for containers without a duration.
func parseDuration(out string) (*int64, error) {
	out = strings.TrimSpace(out)
	if out == "" || out == "N/A" {
		return nil, nil
	}

	// Some containers print one line per program, the first one wins
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = strings.TrimSpace(out[:i])
	}

	secs, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed duration %q", out)
	}

	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return nil, fmt.Errorf("malformed duration %q", out)
	}

	d := int64(math.Round(secs))
	return &d, nil
}

// Normalizable reports whether p has a container that NormalizeContainer rewrites
func Normalizable(p string) bool {
	_, ok := normalizable[strings.ToLower(filepath.Ext(p))]
	return ok
}

func (f *FFmpeg) NormalizeContainer(ctx context.Context, p string) error {
	format, ok := normalizable[strings.ToLower(filepath.Ext(p))]
	if !ok {
		zap.L().Debug("Container doesn't need normalizing", zap.String("path", p))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	// The pending file lives next to the original so the final rename
	// never crosses a filesystem
	pending, err := renameio.NewPendingFile(p, renameio.WithExistingPermissions())
	if err != nil {
		zap.L().Warn("Failed to create pending file", zap.String("path", p), zap.Error(err))
		return fmt.Errorf("%w: failed to create temporary file", ErrNormalizeFailed)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			zap.L().Debug("Failed to cleanup pending file", zap.Error(err))
		}
	}()

	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-y",
		"-v", "error",
		"-i", p,
		"-map", "0",
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", format,
		pending.Name(),
	)

	zap.L().Debug("Running FFmpeg command", zap.String("cmd", cmd.String()))

	var stdErr bytes.Buffer
	cmd.Stderr = &stdErr

	if err := cmd.Run(); err != nil {
		zap.L().Warn("FFmpeg failed",
			zap.String("path", p),
			zap.String("stderr", stdErr.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s", ErrNormalizeFailed, toolReason(err, stdErr.String(), p, pending.Name()))
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		zap.L().Warn("Failed to replace original", zap.String("path", p), zap.Error(err))
		return fmt.Errorf("%w: failed to replace original", ErrNormalizeFailed)
	}

	return nil
}

// toolReason turns a failed run into a short message that is safe to show to
// clients. Stored paths are cut out of the last stderr line.
func toolReason(runErr error, stderr string, paths ...string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])

	for _, p := range paths {
		if p == "" {
			continue
		}
		line = strings.ReplaceAll(line, p+": ", "")
		line = strings.ReplaceAll(line, p, "input")
	}

	if line == "" {
		// exec errors don't carry the arguments
		return runErr.Error()
	}

	return line
}

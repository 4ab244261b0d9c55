// Package stream serves processed videos with HTTP byte range support
package stream

import (
	"bitwise74/pulsestream/internal/model"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrNotReady      = errors.New("video is not ready for streaming")
	ErrFileGone      = errors.New("video file not found")
	ErrStreamAborted = errors.New("stream aborted")
)

const defaultContentType = "video/mp4"

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
}

type file interface {
	io.ReaderAt
	io.Closer
}

type Responder struct {
	open func(name string) (file, error)
}

func NewResponder() *Responder {
	return &Responder{
		open: func(name string) (file, error) {
			return os.Open(name)
		},
	}
}

// ContentType returns the declared MIME type of v or one derived from the
// file extension
func ContentType(v *model.Video) string {
	if v.MimeType != "" {
		return v.MimeType
	}

	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(v.FilePath))]; ok {
		return ct
	}

	return defaultContentType
}

// Serve writes v to w, honoring the request's Range header. Errors other
// than ErrStreamAborted are returned before anything was written, so the
// caller is free to answer with its own status. ErrStreamAborted means the
// headers are already out.
func (s *Responder) Serve(w http.ResponseWriter, r *http.Request, v *model.Video) error {
	if v.Status != model.StatusCompleted {
		return ErrNotReady
	}

	stat, err := os.Stat(v.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileGone
		}

		return fmt.Errorf("failed to stat video file, %w", err)
	}
	size := stat.Size()

	status := http.StatusOK
	span := Range{Start: 0, End: size - 1}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		span, err = ParseRange(rangeHeader, size)
		if err != nil {
			if errors.Is(err, ErrUnsatisfiableRange) {
				w.Header().Set("Content-Range", UnsatisfiedContentRange(size))
			}
			return err
		}

		status = http.StatusPartialContent
	}

	f, err := s.open(v.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileGone
		}

		return fmt.Errorf("failed to open video file, %w", err)
	}
	defer f.Close()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", ContentType(v))

	length := size
	if status == http.StatusPartialContent {
		length = span.Length()
		h.Set("Content-Range", ContentRange(span, size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))

	w.WriteHeader(status)

	if r.Method == http.MethodHead || length == 0 {
		return nil
	}

	n, err := io.Copy(w, io.NewSectionReader(f, span.Start, length))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamAborted, err)
	}

	if n != length {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrStreamAborted, n, length)
	}

	return nil
}

package video

import (
	"bitwise74/pulsestream/internal"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrFileTooLarge        = errors.New("file size exceeds limit")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrNoFile              = errors.New("no video file uploaded")
)

const maxFileNameSize = 255

var allowedExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv"}

type admitted struct {
	Ext      string
	MimeType string
}

// admit checks an uploaded file against the upload policy. The declared
// Content-Type is checked first because it's cheap, then the content
// itself is sniffed.
func admit(fh *multipart.FileHeader, cfg internal.UploadConfig) (int, *admitted, error) {
	if fh == nil {
		return http.StatusBadRequest, nil, ErrNoFile
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, nil, ErrFileNameTooLong
	}

	if fh.Size > cfg.MaxSize {
		return http.StatusRequestEntityTooLarge, nil, ErrFileTooLarge
	}

	ct := fh.Header.Get("Content-Type")
	if len(cfg.AllowedTypes) > 0 && !slices.Contains(cfg.AllowedTypes, ct) {
		return http.StatusBadRequest, nil, ErrFileTypeUnsupported
	}

	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}

	if !strings.HasPrefix(mime.String(), "video/") {
		return http.StatusBadRequest, nil, ErrFileTypeUnsupported
	}

	if ct == "" {
		ct = mime.String()
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !slices.Contains(allowedExtensions, ext) {
		ext = ".mp4"
	}

	return 0, &admitted{Ext: ext, MimeType: ct}, nil
}

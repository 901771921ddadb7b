// Package upload validates a user supplied portrait and hands the encoded
// image to the studio. Every entry point (web form, chat photo, local file)
// goes through Acquirer.Select so the rules stay identical.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ai-portrait-studio/internal/dataurl"
)

const MaxBytes = 10 << 20

var (
	ErrInvalidType = errors.New("file is not an image")
	ErrTooLarge    = errors.New("image exceeds 10 MiB")
	ErrReadFailure = errors.New("failed to read image")
)

type Submitter interface {
	SubmitImage(encoded string)
}

type File struct {
	Name      string
	MediaType string
	// Size is the declared size; negative when unknown.
	Size   int64
	Reader io.Reader
}

type Options struct {
	Logger *slog.Logger
}

type Acquirer struct {
	logger *slog.Logger
}

func New(opts Options) *Acquirer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Acquirer{logger: logger}
}

// Select validates f, encodes it and submits it to dst. On error nothing is
// submitted.
func (a *Acquirer) Select(dst Submitter, f File) error {
	encoded, err := a.Encode(f)
	if err != nil {
		a.logger.Info("upload rejected", "name", f.Name, "media_type", f.MediaType, "size", f.Size, "err", err)
		return err
	}

	dst.SubmitImage(encoded)
	a.logger.Info("upload accepted", "name", f.Name, "size", f.Size)
	return nil
}

// Encode applies the validation rules and returns the data URL for f.
func (a *Acquirer) Encode(f File) (string, error) {
	declared := normalizeMediaType(f.MediaType)
	if declared != "" && declared != "application/octet-stream" && !isImage(declared) {
		return "", ErrInvalidType
	}
	if f.Size > MaxBytes {
		return "", ErrTooLarge
	}
	if f.Reader == nil {
		return "", fmt.Errorf("%w: no content", ErrReadFailure)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(f.Reader, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	if n > MaxBytes {
		return "", ErrTooLarge
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty file", ErrReadFailure)
	}

	mediaType := declared
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalizeMediaType(mimetype.Detect(buf.Bytes()).String())
		if !isImage(mediaType) {
			return "", ErrInvalidType
		}
	}

	return dataurl.Encode(mediaType, buf.Bytes()), nil
}

// UserMessage maps an acquisition error to the notification shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidType):
		return "请上传图片文件"
	case errors.Is(err, ErrTooLarge):
		return "图片大小不能超过 10MB"
	default:
		return "读取图片失败，请重新选择"
	}
}

func normalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ";") {
		value = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
	}
	return strings.ToLower(value)
}

func isImage(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

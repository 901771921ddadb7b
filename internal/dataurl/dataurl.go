// Package dataurl handles the self-describing image strings passed between
// acquisition, generation and presentation: data:<mime>;base64,<payload>.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const DefaultMimeType = "image/jpeg"

var ErrInvalid = errors.New("invalid data url")

var headerRegex = regexp.MustCompile(`^data:([a-zA-Z0-9]+/[a-zA-Z0-9.+-]+)[^,]*,`)

func Encode(mimeType string, data []byte) string {
	return FromBase64(mimeType, base64.StdEncoding.EncodeToString(data))
}

func FromBase64(mimeType, payload string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, payload)
}

// Parse splits value into its media type and base64 payload. Values without a
// data: header are treated as a bare payload of DefaultMimeType.
func Parse(value string) (mimeType string, payload string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", ErrInvalid
	}

	if !strings.HasPrefix(value, "data:") {
		return DefaultMimeType, value, nil
	}

	idx := strings.IndexByte(value, ',')
	if idx < 0 {
		return "", "", ErrInvalid
	}

	mimeType = DefaultMimeType
	if matches := headerRegex.FindStringSubmatch(value); len(matches) == 2 {
		mimeType = matches[1]
	}

	payload = value[idx+1:]
	if payload == "" {
		return "", "", ErrInvalid
	}
	return mimeType, payload, nil
}

func Decode(value string) (string, []byte, error) {
	mimeType, payload, err := Parse(value)
	if err != nil {
		return "", nil, err
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	return mimeType, data, nil
}

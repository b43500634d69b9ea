package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidImage means the payload is neither a URL nor a decodable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge means the decoded image exceeds the configured limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUploadsDisabled means an inline image arrived but no store is configured.
	ErrUploadsDisabled = errors.New("image uploads are not configured")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Images turns image fields from API requests into URLs. Already hosted
// http(s) URLs pass through untouched; data URLs and bare base64 payloads are
// decoded, size-checked, sniffed, and uploaded.
type Images struct {
	Store    ObjectStore // nil disables inline uploads
	MaxBytes int64
}

// Resolve returns the URL to persist for input. Empty input yields "".
// prefix groups objects by purpose (for example "avatars" or "messages").
func (im Images) Resolve(ctx context.Context, prefix, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	low := strings.ToLower(input)
	if strings.HasPrefix(low, "https://") || strings.HasPrefix(low, "http://") {
		return input, nil
	}

	payload := input
	if strings.HasPrefix(low, "data:") {
		comma := strings.IndexByte(input, ',')
		if comma < 0 || !strings.Contains(low[:comma], ";base64") {
			return "", ErrInvalidImage
		}
		payload = input[comma+1:]
	}

	if im.MaxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > im.MaxBytes+2 {
		return "", ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidImage
	}
	if im.MaxBytes > 0 && int64(len(data)) > im.MaxBytes {
		return "", ErrImageTooLarge
	}
	ct := http.DetectContentType(data)
	ext, ok := extensions[ct]
	if !ok {
		return "", ErrInvalidImage
	}
	if im.Store == nil {
		return "", ErrUploadsDisabled
	}

	key := strings.Trim(prefix, "/") + "/" + uuid.NewString() + ext
	if err := im.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ct); err != nil {
		return "", err
	}
	return im.Store.URL(key), nil
}

package validation

import (
	"net/http"
	"strings"

	apperrors "github.com/JSFTI/bg-removal/internal/errors"
)

// DefaultMaxUploadSize is the upload limit used when none is configured.
const DefaultMaxUploadSize int64 = 10 << 20

// UploadValidator checks an upload before any decoding happens
type UploadValidator struct {
	maxSize         int64
	allowedPrefixes []string
}

// NewUploadValidator creates a validator accepting any image/* type up to maxSize bytes
func NewUploadValidator(maxSize int64) *UploadValidator {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	return &UploadValidator{
		maxSize:         maxSize,
		allowedPrefixes: []string{"image/"},
	}
}

// MaxSize returns the configured size limit in bytes.
func (v *UploadValidator) MaxSize() int64 {
	return v.maxSize
}

// ValidateUpload rejects empty, oversized and non-image uploads
func (v *UploadValidator) ValidateUpload(size int64, contentType string) error {
	if size <= 0 {
		return apperrors.NewInvalidUploadError("upload is empty", nil)
	}

	if size > v.maxSize {
		return apperrors.NewInvalidUploadError("upload exceeds maximum size", nil).
			WithStatus(http.StatusRequestEntityTooLarge)
	}

	if !v.isTypeAllowed(contentType) {
		return apperrors.NewInvalidUploadError("upload is not an image", nil)
	}

	return nil
}

// isTypeAllowed checks the declared MIME type, ignoring case and parameters
func (v *UploadValidator) isTypeAllowed(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, prefix := range v.allowedPrefixes {
		if strings.HasPrefix(mediaType, prefix) && len(mediaType) > len(prefix) {
			return true
		}
	}
	return false
}

// Package attachment converts user file attachments into content blocks the
// model accepts: inline base64 images for the supported formats, and a short
// textual placeholder for everything else.
package attachment

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"

	"assistant/internal/chat"
)

// Attachment is a file as received from the user, payload included.
type Attachment struct {
	Name string
	Type string
	Size int64
	Data []byte
}

var supportedImages = map[string]string{
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/png":  "image/png",
	"image/gif":  "image/gif",
	"image/webp": "image/webp",
}

// NormalizeImageType returns the canonical media type for a supported image
// type and whether it is supported at all.
func NormalizeImageType(mimeType string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	norm, ok := supportedImages[mt]
	return norm, ok
}

// Inlinable reports whether Encode would produce an image block for a.
func Inlinable(a Attachment) bool {
	_, ok := NormalizeImageType(a.Type)
	return ok
}

// Encode converts a into one content block. Callers validate size first.
func Encode(a Attachment) chat.ContentBlock {
	if media, ok := NormalizeImageType(a.Type); ok {
		return chat.ImageBlock(media, base64.StdEncoding.EncodeToString(a.Data))
	}
	label := "File attachment"
	if strings.HasPrefix(strings.ToLower(a.Type), "image/") {
		label = "Unsupported image format"
	}
	return chat.TextBlock(Placeholder(label, a))
}

// Placeholder renders the text that stands in for a non-inlined attachment.
func Placeholder(label string, a Attachment) string {
	return fmt.Sprintf("\n\n%s: %s (%s, %s)", label, a.Name, a.Type, FormatSize(a.Size))
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders n bytes with a 1024 radix and up to two decimals.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	v, i := float64(n), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// ValidationError rejects an attachment before it reaches Encode.
type ValidationError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("attachment %q exceeds the %s limit (%s)", e.Name, FormatSize(e.Limit), FormatSize(e.Size))
}

// Validate checks a against the per-attachment limit. A limit <= 0 disables
// the check. The larger of the declared and actual size is compared.
func Validate(a Attachment, limit int64) error {
	if limit <= 0 {
		return nil
	}
	size := a.Size
	if n := int64(len(a.Data)); n > size {
		size = n
	}
	if size > limit {
		return &ValidationError{Name: a.Name, Size: size, Limit: limit}
	}
	return nil
}

// ValidateAll returns the first validation failure among as.
func ValidateAll(as []Attachment, limit int64) error {
	for _, a := range as {
		if err := Validate(a, limit); err != nil {
			return err
		}
	}
	return nil
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Sniff resolves the MIME type of data when the declared type is missing or
// generic. A specific declared type is kept.
func Sniff(data []byte, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	mt := mimetype.Detect(data)
	if mt == nil {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(mt.String(), ';'); i >= 0 {
		return mt.String()[:i]
	}
	return mt.String()
}

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLimit matches the detector's default read limit.
const sniffLimit = 3072

// Sniff detects the content type of r from its leading bytes. The returned
// reader yields the whole content, including the bytes already consumed.
func Sniff(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, fmt.Errorf("sniff content type: %w", err)
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}

// BaseType strips parameters such as charset from a content type.
func BaseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// IsImage reports raster images. SVG is excluded because it can carry script.
func IsImage(contentType string) bool {
	ct := BaseType(contentType)
	return strings.HasPrefix(ct, "image/") && ct != "image/svg+xml"
}

// IsMedia reports images, video and audio.
func IsMedia(contentType string) bool {
	ct := BaseType(contentType)
	return IsImage(ct) || strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/")
}

// IsPDF reports application/pdf.
func IsPDF(contentType string) bool {
	return BaseType(contentType) == "application/pdf"
}

// Inline reports whether a browser may render the type from our own origin.
func Inline(contentType string) bool {
	return IsMedia(contentType) || IsPDF(contentType)
}

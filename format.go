package codec

import (
	"fmt"
	"mime"
	"strings"
)

// Format selects a wire encoding.
type Format uint8

const (
	FormatUnknown Format = iota
	// FormatJSON is the human-readable backend. Properties are keyed by name.
	FormatJSON
	// FormatBinary is the compact backend. Properties are keyed by numeric id.
	FormatBinary
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/x-bidstream"
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatBinary:
		return "binary"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ContentType returns the MIME type carried by HTTP and message envelopes.
func (f Format) ContentType() string {
	if f == FormatBinary {
		return ContentTypeBinary
	}
	return ContentTypeJSON
}

// Valid reports whether f names a known backend.
func (f Format) Valid() bool { return f == FormatJSON || f == FormatBinary }

// ParseFormat accepts the names returned by String.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "binary", "bin":
		return FormatBinary, nil
	}
	return FormatUnknown, fmt.Errorf("%w: format %q", ErrUnsupportedOperation, s)
}

// FormatForContentType maps a Content-Type header to a Format. Anything that
// is not the binary type falls back to JSON.
func FormatForContentType(contentType string) Format {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == ContentTypeBinary {
		return FormatBinary
	}
	return FormatJSON
}

package utils

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrInvalidDataURI = errors.New("attachment is not a valid base64 data URI")
	ErrMIMEMismatch   = errors.New("attachment payload does not match its declared MIME type")
)

// DataURI is a decoded data:<mime>;base64,<payload> attachment.
type DataURI struct {
	MIMEType string
	Data     []byte
}

// ParseDataURI decodes a data URI and checks that the declared MIME type
// agrees with the sniffed payload type (same type family at minimum).
func ParseDataURI(s string) (*DataURI, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, ErrInvalidDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, ErrInvalidDataURI
	}

	declared, encoding, ok := strings.Cut(meta, ";")
	if !ok || encoding != "base64" || declared == "" {
		return nil, ErrInvalidDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrInvalidDataURI
	}
	if len(data) == 0 {
		return nil, ErrInvalidDataURI
	}

	detected := mimetype.Detect(data)
	if !detected.Is(declared) && mimeFamily(detected.String()) != mimeFamily(declared) {
		return nil, ErrMIMEMismatch
	}

	return &DataURI{MIMEType: declared, Data: data}, nil
}

func mimeFamily(m string) string {
	family, _, _ := strings.Cut(m, "/")
	return family
}

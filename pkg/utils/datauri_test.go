package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestParseDataURI(t *testing.T) {
	parsed, err := ParseDataURI(encodeURI("text/plain", []byte("hello world")))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", parsed.MIMEType)
	assert.Equal(t, []byte("hello world"), parsed.Data)
}

func TestParseDataURIPNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	parsed, err := ParseDataURI(encodeURI("image/png", png))
	require.NoError(t, err)
	assert.Equal(t, "image/png", parsed.MIMEType)
}

func TestParseDataURIRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no scheme":        "hello world",
		"no payload":       "data:text/plain;base64",
		"no base64 marker": "data:text/plain,hello",
		"bad base64":       "data:text/plain;base64,@@@@",
		"empty payload":    "data:text/plain;base64,",
	}
	for name, uri := range cases {
		_, err := ParseDataURI(uri)
		assert.ErrorIs(t, err, ErrInvalidDataURI, name)
	}
}

func TestParseDataURIRejectsMismatchedMIME(t *testing.T) {
	_, err := ParseDataURI(encodeURI("image/png", []byte("just some text")))
	assert.ErrorIs(t, err, ErrMIMEMismatch)
}

func TestParseDataURIAcceptsSameFamily(t *testing.T) {
	// Sniffing cannot always tell siblings apart; the same top-level type
	// is close enough.
	_, err := ParseDataURI(encodeURI("text/markdown", []byte("# heading")))
	assert.NoError(t, err)
}

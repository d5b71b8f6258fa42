package secretbox

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return hex.EncodeToString(make([]byte, keySize))
}

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	plaintext := []byte("ya29.refresh-token-material")
	envelope, err := box.Seal(plaintext)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(envelope, ":"))

	got, err := box.Open(envelope)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	envelope, err := box.Seal([]byte("token"))
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	tamperedCiphertext, err := hex.DecodeString(parts[2])
	require.NoError(t, err)
	tamperedCiphertext[0] ^= 0xFF
	parts[2] = hex.EncodeToString(tamperedCiphertext)
	tampered := strings.Join(parts, ":")

	_, err = box.Open(tampered)
	require.Error(t, err)
}

func TestOpenRejectsMalformedEnvelope(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	_, err = box.Open("not-an-envelope")
	assert.Error(t, err)

	_, err = box.Open("00:00")
	assert.Error(t, err)
}

func TestNewBoxRejectsWrongKeySize(t *testing.T) {
	_, err := NewBox(hex.EncodeToString(make([]byte, 16)))
	assert.Error(t, err)
}

func TestNewBoxRejectsNonHexKey(t *testing.T) {
	_, err := NewBox("not-hex-at-all")
	assert.Error(t, err)
}

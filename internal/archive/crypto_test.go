package archive

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encrypt(t *testing.T, payload, key, salt []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewEncryptWriter(&buf, key, salt)
	require.NoError(t, err)
	// Write in uneven pieces to exercise block buffering.
	for len(payload) > 0 {
		n := 7
		if n > len(payload) {
			n = len(payload)
		}
		_, err := w.Write(payload[:n])
		require.NoError(t, err)
		payload = payload[n:]
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("correct horse battery staple")
	salt := []byte("01234567")

	for _, size := range []int{0, 1, 15, 16, 17, 1000, 4096} {
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)

		ciphertext := encrypt(t, payload, key, salt)

		r, err := NewDecryptReader(bytes.NewReader(ciphertext), key)
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, payload, got, "size %d", size)
	}
}

func TestEncryptedStreamCarriesSaltFraming(t *testing.T) {
	salt := []byte("abcdefgh")
	ciphertext := encrypt(t, []byte("payload"), []byte("key"), salt)

	require.GreaterOrEqual(t, len(ciphertext), 16)
	assert.Equal(t, []byte("Salted__"), ciphertext[:8])
	assert.Equal(t, salt, ciphertext[8:16])
	// Payload of 7 bytes pads to exactly one cipher block.
	assert.Len(t, ciphertext, 16+16)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	ciphertext := encrypt(t, []byte("some secret data"), []byte("right key"), []byte("01234567"))

	r, err := NewDecryptReader(bytes.NewReader(ciphertext), []byte("wrong key"))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	if err != nil {
		assert.ErrorIs(t, err, ErrMalformedSecret)
	} else {
		// A wrong key can, rarely, produce valid-looking padding; the
		// payload is still garbage.
		assert.NotEqual(t, []byte("some secret data"), got)
	}
}

func TestDecryptRejectsMissingHeader(t *testing.T) {
	_, err := NewDecryptReader(bytes.NewReader([]byte("not an encrypted stream")), []byte("key"))
	assert.ErrorIs(t, err, ErrMalformedSecret)
}

func TestDecryptRejectsTruncatedStream(t *testing.T) {
	ciphertext := encrypt(t, []byte("some secret data that spans blocks"), []byte("key"), []byte("01234567"))

	r, err := NewDecryptReader(bytes.NewReader(ciphertext[:len(ciphertext)-5]), []byte("key"))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrMalformedSecret)
}

func TestEncryptWriterRejectsBadSalt(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEncryptWriter(&buf, []byte("key"), []byte("short"))
	assert.ErrorIs(t, err, ErrMalformedSecret)
}

func TestEncryptWriterRejectsEmptyKey(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEncryptWriter(&buf, nil, []byte("01234567"))
	assert.ErrorIs(t, err, ErrMalformedSecret)
}

func TestRandomSaltLength(t *testing.T) {
	salt, err := RandomSalt()
	require.NoError(t, err)
	assert.Len(t, salt, SaltLen)
}

package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	envelope, err := Encrypt([]byte("account-signing-key"), "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, envelope)

	plaintext, err := Decrypt(envelope, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "account-signing-key", string(plaintext))
}

func TestDecryptWrongPassword(t *testing.T) {
	envelope, err := Encrypt([]byte("account-signing-key"), "hunter2")
	require.NoError(t, err)

	_, err = Decrypt(envelope, "hunter3")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	_, err := Decrypt("not base64!!!", "hunter2")
	assert.Error(t, err)

	_, err = Decrypt("dG9vc2hvcnQ=", "hunter2") // valid base64, too short
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestEncryptIsSalted(t *testing.T) {
	a, err := Encrypt([]byte("key"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("key"), "pw")
	require.NoError(t, err)

	// Fresh salt and nonce per envelope.
	assert.NotEqual(t, a, b)
}

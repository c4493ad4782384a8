package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/term"
)

const (
	saltLen    = 16
	keyLen     = 32 // AES-256
	iterations = 600_000
)

// ErrWrongPassword is returned when the envelope fails authentication.
var ErrWrongPassword = errors.New("keystore: wrong password or corrupt envelope")

// Encrypt seals plaintext under a password and returns a base64 envelope of
// salt || nonce || ciphertext.
func Encrypt(plaintext []byte, password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("keystore: salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keystore: nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	envelope := make([]byte, 0, saltLen+len(nonce)+len(sealed))
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, sealed...)
	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt opens a base64 envelope produced by Encrypt.
func Decrypt(envelope, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode envelope: %w", err)
	}
	if len(raw) < saltLen {
		return nil, ErrWrongPassword
	}

	salt := raw[:saltLen]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	rest := raw[saltLen:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: gcm: %w", err)
	}
	return gcm, nil
}

// PromptPassword reads a password from the terminal without echo. Falls back
// to the FLEET_KEY_PASSWORD environment variable when stdin is not a
// terminal.
func PromptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if pw, ok := os.LookupEnv("FLEET_KEY_PASSWORD"); ok {
			return pw, nil
		}
		return "", errors.New("keystore: stdin is not a terminal and FLEET_KEY_PASSWORD is unset")
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("keystore: read password: %w", err)
	}
	return string(pw), nil
}

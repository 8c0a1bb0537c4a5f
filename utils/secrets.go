package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"strings"
)

const encryptedPrefix = "enc:"

// secretKey derives a 32-byte AES key from DMS_CREDENTIALS_KEY. An empty key
// disables encryption (dev mode: secrets are stored as-is).
func secretKey() []byte {
	raw := strings.TrimSpace(os.Getenv("DMS_CREDENTIALS_KEY"))
	if raw == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// EncryptSecret encrypts a credential value with AES-256-GCM and returns an
// "enc:"-prefixed base64 blob. Without a configured key the value is returned
// unchanged.
func EncryptSecret(plain string) (string, error) {
	key := secretKey()
	if key == nil {
		return plain, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret. Values without the "enc:" prefix are
// returned unchanged so plaintext rows written before a key was configured
// keep working.
func DecryptSecret(stored string) (string, error) {
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}

	key := secretKey()
	if key == nil {
		return "", errors.New("DMS_CREDENTIALS_KEY is not set but stored credential is encrypted")
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("stored credential is truncated")
	}

	plain, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

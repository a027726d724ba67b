package common

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/Laisky/errors/v2"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
)

const secretMask = "******"

// MaskSecret returns a masked placeholder for secrets in API responses.
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	return secretMask
}

// IsMaskedSecret reports whether the supplied value is a masked placeholder.
func IsMaskedSecret(value string) bool {
	return value == secretMask
}

// EncryptSecret encrypts a sensitive value with AES-GCM under a key derived
// from AUTH_SECRET. Stored provider credentials go through this before they
// hit the database.
func EncryptSecret(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	key := deriveSecretKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "create gcm")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(value), nil)
	payload := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	payload, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", errors.Wrap(err, "decode secret")
	}

	key := deriveSecretKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "create gcm")
	}

	nonceSize := gcm.NonceSize()
	if len(payload) < nonceSize {
		return "", errors.New("secret payload too short")
	}

	plaintext, err := gcm.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", errors.Wrap(err, "decrypt secret")
	}
	return string(plaintext), nil
}

// deriveSecretKey returns a stable 32-byte key derived from AUTH_SECRET.
func deriveSecretKey() []byte {
	secret := config.AuthSecret
	if secret == "" {
		secret = "shinway-default-secret"
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Package crypto seals credential secrets with AES-256-GCM before they are
// written to any cache, so a Redis snapshot never holds a usable HMAC key.
//
// The sealing key is derived from a passphrase with PBKDF2-SHA256. Each Seal
// uses a fresh random nonce, and the access key is bound as additional
// authenticated data so a sealed secret cannot be moved to another entry.
//
//	sealer, err := crypto.NewSecretSealer(os.Getenv("SECRET_ENCRYPTION_KEY"))
//	sealed, err := sealer.Seal(secret, accessKey)
//	secret, err = sealer.Open(sealed, accessKey)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"hmac-gateway/internal/common/errors"
)

const (
	sealedPrefix     = "v1:"
	kdfIterations    = 100000
	minPassphraseLen = 16
)

var kdfSalt = []byte("hmac-gateway/secret-sealer")

// SecretSealer encrypts and decrypts secrets. It is safe for concurrent use.
type SecretSealer struct {
	aead cipher.AEAD
}

// NewSecretSealer derives a 32-byte key from passphrase.
func NewSecretSealer(passphrase string) (*SecretSealer, error) {
	if len(passphrase) < minPassphraseLen {
		return nil, errors.ValidationError("secret encryption key must be at least 16 characters")
	}

	key := pbkdf2.Key([]byte(passphrase), kdfSalt, kdfIterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}

	return &SecretSealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to associatedData and returns
// "v1:" + base64(nonce || ciphertext).
func (s *SecretSealer) Seal(plaintext, associatedData string) (string, error) {
	if plaintext == "" {
		return "", errors.ValidationError("refusing to seal an empty secret")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associatedData))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Tampering, a wrong key or mismatched associatedData all
// produce an error.
func (s *SecretSealer) Open(sealed, associatedData string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", errors.ValidationError("sealed secret has unknown format")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", errors.InternalError("failed to decode sealed secret", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return "", errors.ValidationError("sealed secret too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(associatedData))
	if err != nil {
		return "", errors.InternalError("failed to open sealed secret", err)
	}
	return string(plaintext), nil
}

// Package crypto implements at-rest protection of stored URLs.
//
// URLs are sealed with AES-256-GCM under a fixed key; every call uses a
// fresh random nonce so equal plaintexts never produce equal blobs. Lookups
// by URL go through Tag, a keyed HMAC over a sub-key derived from the same
// master key, which is deterministic and safe to index.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 32
	NonceSize = 12

	tagInfo = "cipherlink url tag v1"
)

var (
	ErrInvalidKey     = errors.New("encryption key must be 32 bytes")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecode         = errors.New("malformed ciphertext")
	ErrAuthentication = errors.New("ciphertext authentication failed")
	ErrEncoding       = errors.New("decrypted data is not valid UTF-8")
)

// Encryptor seals and opens URL strings. It is safe for concurrent use.
type Encryptor struct {
	aead   cipher.AEAD
	tagKey []byte
}

// NewEncryptor builds an Encryptor from a raw 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	tagKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(tagInfo)), tagKey); err != nil {
		return nil, fmt.Errorf("derive tag key: %w", err)
	}

	return &Encryptor{aead: aead, tagKey: tagKey}, nil
}

// NewEncryptorFromBase64 decodes a standard base64 key and builds an Encryptor.
func NewEncryptorFromBase64(encoded string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return NewEncryptor(key)
}

// Encrypt returns base64(nonce || ciphertext) for plaintext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryption, err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(data) < NonceSize {
		return "", fmt.Errorf("%w: %d bytes", ErrDecode, len(data))
	}

	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	if !utf8.Valid(plaintext) {
		return "", ErrEncoding
	}
	return string(plaintext), nil
}

// Tag returns the hex HMAC-SHA256 of value under the derived tag key.
func (e *Encryptor) Tag(value string) string {
	mac := hmac.New(sha256.New, e.tagKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

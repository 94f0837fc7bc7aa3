// Package crypto provides AES-256-GCM encryption for secrets at rest,
// primarily refresh tokens. Each encryption uses a fresh random nonce, so
// encrypting the same plaintext twice yields different envelopes.
//
// The envelope format is "<nonce_hex>:<ciphertext_and_tag_hex>" and is
// stable: it must round-trip exactly across versions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"oauth-bridge/internal/common/errors"
)

// KeySize is the required encryption key length in bytes (AES-256).
const KeySize = 32

// Cipher encrypts and decrypts string secrets. It is safe for concurrent
// use. The key is validated on first use, not at construction, so a missing
// or malformed key only surfaces when something actually touches a secret;
// main performs a round-trip self-check at startup to force that moment
// before traffic is accepted.
type Cipher struct {
	key string
}

// New creates a Cipher from the raw key material. No validation happens
// here; see SelfCheck.
func New(key string) *Cipher {
	return &Cipher{key: key}
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	if len(c.key) != KeySize {
		return nil, errors.ConfigError(fmt.Sprintf("encryption key must be exactly %d bytes, got %d", KeySize, len(c.key)))
	}
	block, err := aes.NewCipher([]byte(c.key))
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}
	return gcm, nil
}

// Encrypt encrypts a plaintext and returns the hex envelope. Empty
// plaintexts are encrypted like any other value.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt decrypts an envelope produced by Encrypt. It returns a
// FormatError when the envelope does not split into exactly two non-empty
// hex segments, and an IntegrityError when authentication fails (tampered
// data or wrong key).
func (c *Cipher) Decrypt(envelope string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", errors.FormatError("ciphertext envelope must be <nonce_hex>:<ciphertext_hex>")
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", errors.FormatError("ciphertext envelope nonce is not valid hex")
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", errors.FormatError("ciphertext envelope body is not valid hex")
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.FormatError("ciphertext envelope nonce has wrong length")
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.IntegrityError("ciphertext failed authentication")
	}
	return string(plaintext), nil
}

// SelfCheck performs an encrypt/decrypt round trip. It is called once at
// startup so key problems abort the process before any traffic is served.
func (c *Cipher) SelfCheck() error {
	const probe = "cipher-self-check"
	envelope, err := c.Encrypt(probe)
	if err != nil {
		return err
	}
	plaintext, err := c.Decrypt(envelope)
	if err != nil {
		return err
	}
	if plaintext != probe {
		return errors.InternalError("cipher self-check round trip mismatch", nil)
	}
	return nil
}

package baseline

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const keySize = 32 // AES-256

// loadOrGenerateKey reads the key material from keyPath, generating and
// persisting a fresh random key on first use — mirroring the teacher
// domain's "key material in a sibling file, generated on first use"
// pattern (spec.md §4.3).
func loadOrGenerateKey(keyPath string) ([]byte, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		if len(data) != keySize {
			return nil, fmt.Errorf("secret key at %s has wrong length %d, want %d", keyPath, len(data), keySize)
		}
		return data, nil
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("writing secret key: %w", err)
	}
	return key, nil
}

// cipherBox wraps AES-256-GCM encryption of arbitrary strings, and a
// deterministic keyed digest used as a lookup column alongside the
// nondeterministic ciphertext (spec.md §9's "Encrypted-path uniqueness"
// design note).
type cipherBox struct {
	gcm cipher.AEAD
	key []byte
}

func newCipherBox(key []byte) (*cipherBox, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing GCM: %w", err)
	}
	return &cipherBox{gcm: gcm, key: key}, nil
}

// encrypt returns the hex-encoded nonce||ciphertext for plaintext.
func (c *cipherBox) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// decrypt reverses encrypt. Any malformed or tampered ciphertext is
// reported as an error; callers (LoadAll) skip the offending row rather
// than fail the whole load, per spec.md §7's "decryption failure" policy.
func (c *cipherBox) decrypt(ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plain), nil
}

// pathDigest returns a deterministic hex digest of path, used as the
// lookup column so Put/Delete don't require a linear decrypt-scan.
func pathDigest(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

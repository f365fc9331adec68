// Package vault encrypts OAuth token blobs at rest and never persists
// plaintext. Key material is either a direct base64 key or a passphrase run
// through PBKDF2 with a fixed application salt, so the same passphrase always
// recovers the same key without a separate salt store. The cost is no
// per-install salt diversity; that tradeoff is deliberate.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength = 32
	// directKeyLength is the length of a URL-safe base64 encoding of a 32-byte key.
	directKeyLength = 44

	// kdfIterations follows the OWASP recommended minimum for PBKDF2-SHA256.
	kdfIterations = 480_000
)

// kdfSalt is fixed so a passphrase alone can recover the key.
var kdfSalt = []byte("schwab-token-encryption-v1")

// ErrorKind discriminates encryption failures so callers can react without
// string matching.
type ErrorKind int

const (
	// KindNoKey means no key material was supplied.
	KindNoKey ErrorKind = iota
	// KindBadKey means decryption failed: wrong key or corrupted ciphertext.
	KindBadKey
	// KindBadPayload means decryption succeeded but the plaintext is not valid JSON.
	KindBadPayload
	// KindSerialize means the token data could not be serialized for encryption.
	KindSerialize
	// KindStorage means a filesystem operation on the token file failed.
	KindStorage
)

// EncryptionError is the error type for all vault operations. It must never
// silently fall back to plaintext behavior.
type EncryptionError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *EncryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault: %s: %v", e.Msg, e.Err)
	}
	return "vault: " + e.Msg
}

func (e *EncryptionError) Unwrap() error { return e.Err }

func encErr(kind ErrorKind, msg string, err error) *EncryptionError {
	return &EncryptionError{Kind: kind, Msg: msg, Err: err}
}

// TokenEncryption encrypts and decrypts OAuth token maps with AES-256-GCM.
type TokenEncryption struct {
	aead cipher.AEAD
}

// NewTokenEncryption builds a TokenEncryption from key material: either a
// 44-character URL-safe base64 key (used directly) or any other non-empty
// string treated as a passphrase and run through the KDF.
func NewTokenEncryption(keySource string) (*TokenEncryption, error) {
	if keySource == "" {
		return nil, encErr(KindNoKey, "no encryption key provided; set TOKEN_ENCRYPTION_KEY or run cmd/keygen", nil)
	}

	key := deriveKey(keySource)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, encErr(KindBadKey, "creating cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, encErr(KindBadKey, "creating AEAD", err)
	}
	return &TokenEncryption{aead: aead}, nil
}

func deriveKey(keySource string) []byte {
	if len(keySource) == directKeyLength {
		if key, err := base64.URLEncoding.DecodeString(keySource); err == nil && len(key) == keyLength {
			return key
		}
	}
	return pbkdf2.Key([]byte(keySource), kdfSalt, kdfIterations, keyLength, sha256.New)
}

// Encrypt serializes the token map and returns nonce-prefixed ciphertext.
func (t *TokenEncryption) Encrypt(tokens map[string]interface{}) ([]byte, error) {
	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return nil, encErr(KindSerialize, "serializing tokens", err)
	}

	nonce := make([]byte, t.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, encErr(KindSerialize, "generating nonce", err)
	}
	return t.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. A wrong key or corrupted data yields KindBadKey;
// valid decryption of non-JSON content yields KindBadPayload.
func (t *TokenEncryption) Decrypt(data []byte) (map[string]interface{}, error) {
	if len(data) < t.aead.NonceSize() {
		return nil, encErr(KindBadKey, "ciphertext too short", nil)
	}
	nonce, ciphertext := data[:t.aead.NonceSize()], data[t.aead.NonceSize():]

	plaintext, err := t.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, encErr(KindBadKey, "decryption failed; the key may be wrong or the token file corrupted", err)
	}

	var tokens map[string]interface{}
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return nil, encErr(KindBadPayload, "decrypted token data is not valid JSON", err)
	}
	return tokens, nil
}

// GenerateKey returns a fresh random key in the direct (base64) form.
func GenerateKey() (string, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

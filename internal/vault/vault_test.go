package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleTokens() map[string]interface{} {
	return map[string]interface{}{
		"access_token":  "atk-12345",
		"refresh_token": "rtk-67890",
		"expires_at":    "2026-09-01T00:00:00Z",
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewTokenEncryption("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}

	tokens := sampleTokens()
	ciphertext, err := enc.Encrypt(tokens)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	for k, want := range tokens {
		if decrypted[k] != want {
			t.Errorf("decrypted[%q] = %v, want %v", k, decrypted[k], want)
		}
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	enc1, err := NewTokenEncryption("passphrase-one")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}
	enc2, err := NewTokenEncryption("passphrase-two")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}

	ciphertext, err := enc1.Encrypt(sampleTokens())
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = enc2.Decrypt(ciphertext)
	if err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
	var encErr *EncryptionError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *EncryptionError, got %T", err)
	}
	if encErr.Kind != KindBadKey {
		t.Errorf("error kind = %v, want KindBadKey", encErr.Kind)
	}
}

func TestPassphraseDerivationDeterministic(t *testing.T) {
	enc1, err := NewTokenEncryption("same passphrase")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}
	enc2, err := NewTokenEncryption("same passphrase")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}

	ciphertext, err := enc1.Encrypt(sampleTokens())
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := enc2.Decrypt(ciphertext); err != nil {
		t.Fatalf("second instance with same passphrase failed to decrypt: %v", err)
	}
}

func TestDirectKeyAccepted(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != directKeyLength {
		t.Fatalf("generated key length = %d, want %d", len(key), directKeyLength)
	}

	enc, err := NewTokenEncryption(key)
	if err != nil {
		t.Fatalf("NewTokenEncryption with generated key failed: %v", err)
	}
	ciphertext, err := enc.Encrypt(sampleTokens())
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := enc.Decrypt(ciphertext); err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	_, err := NewTokenEncryption("")
	if err == nil {
		t.Fatal("expected error for empty key")
	}
	var encErr *EncryptionError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *EncryptionError, got %T", err)
	}
	if encErr.Kind != KindNoKey {
		t.Errorf("error kind = %v, want KindNoKey", encErr.Kind)
	}
	// The hint must name the variable the config loader actually reads.
	if !strings.Contains(err.Error(), "TOKEN_ENCRYPTION_KEY") || strings.Contains(err.Error(), "SCHWAB_TOKEN_ENCRYPTION_KEY") {
		t.Errorf("error hint = %q, want TOKEN_ENCRYPTION_KEY", err.Error())
	}
}

func TestDecryptGarbage(t *testing.T) {
	enc, err := NewTokenEncryption("some passphrase")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x01, 0x02}},
		{"random bytes", []byte("this is not a valid ciphertext at all")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			var encErr *EncryptionError
			if !errors.As(err, &encErr) {
				t.Fatalf("expected *EncryptionError, got %T", err)
			}
		})
	}
}

func TestStoreSaveLoad(t *testing.T) {
	enc, err := NewTokenEncryption("store test passphrase")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tokens.enc")
	store := NewStore(enc, path, nil)

	if store.Exists() {
		t.Fatal("Exists() = true before save")
	}

	tokens := sampleTokens()
	if err := store.Save(tokens); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !store.Exists() {
		t.Fatal("Exists() = false after save")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for k, want := range tokens {
		if loaded[k] != want {
			t.Errorf("loaded[%q] = %v, want %v", k, loaded[k], want)
		}
	}
}

func TestStoreMigratePlaintext(t *testing.T) {
	enc, err := NewTokenEncryption("migrate test passphrase")
	if err != nil {
		t.Fatalf("NewTokenEncryption failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tokens.json")

	plaintext, err := json.Marshal(sampleTokens())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := os.WriteFile(path, plaintext, 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	store := NewStore(enc, path, nil)
	if !store.IsPlaintextFile() {
		t.Fatal("IsPlaintextFile() = false for JSON file")
	}

	tokens, migrated, err := store.Migrate()
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !migrated {
		t.Fatal("Migrate() migrated = false for plaintext file")
	}
	if tokens["access_token"] != "atk-12345" {
		t.Errorf("migrated access_token = %v", tokens["access_token"])
	}

	// File on disk must no longer be readable as JSON.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var probe map[string]interface{}
	if json.Unmarshal(raw, &probe) == nil {
		t.Fatal("file still plaintext JSON after migration")
	}

	// A second migrate pass is a no-op.
	tokens, migrated, err = store.Migrate()
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if migrated {
		t.Fatal("second Migrate() reported migration of already-encrypted file")
	}
	if tokens["refresh_token"] != "rtk-67890" {
		t.Errorf("refresh_token after second migrate = %v", tokens["refresh_token"])
	}
}

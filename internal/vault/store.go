package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"schwab-invest-bot/internal/logging"
)

// Store persists encrypted tokens at a fixed path.
type Store struct {
	enc    *TokenEncryption
	path   string
	logger *logging.Logger
}

// NewStore creates a token store. The path should already have passed
// validate.Path.
func NewStore(enc *TokenEncryption, path string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.WithComponent("vault")
	}
	return &Store{enc: enc, path: path, logger: logger}
}

// Path returns the token file location.
func (s *Store) Path() string { return s.path }

// Exists reports whether a token file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save encrypts tokens and writes them with owner-only permission. A chmod
// failure is logged, not fatal.
func (s *Store) Save(tokens map[string]interface{}) error {
	data, err := s.enc.Encrypt(tokens)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return encErr(KindStorage, "creating token directory", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return encErr(KindStorage, "writing token file", err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("could not set restrictive token file permissions", "path", s.path, "error", err)
	}

	s.logger.Info("encrypted tokens saved", "path", s.path)
	return nil
}

// Load reads and decrypts the token file.
func (s *Store) Load() (map[string]interface{}, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, encErr(KindStorage, "reading token file", err)
	}
	return s.enc.Decrypt(data)
}

// IsPlaintextFile reports whether the token file parses as JSON, which marks
// it as a legacy unencrypted file. A missing file returns false. The
// heuristic can misclassify a corrupted ciphertext as "not plaintext", in
// which case Load surfaces a KindBadKey error instead.
func (s *Store) IsPlaintextFile() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var probe map[string]interface{}
	return json.Unmarshal(data, &probe) == nil
}

// Migrate re-encrypts a legacy plaintext token file in place and returns its
// contents. If the file is already encrypted it is left alone and the decrypted
// tokens are returned with migrated=false; an absent file returns nil tokens.
func (s *Store) Migrate() (tokens map[string]interface{}, migrated bool, err error) {
	data, readErr := os.ReadFile(s.path)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, encErr(KindStorage, "reading token file", readErr)
	}

	var plain map[string]interface{}
	if json.Unmarshal(data, &plain) != nil {
		// Not plaintext JSON; assume already encrypted.
		tokens, loadErr := s.enc.Decrypt(data)
		if loadErr != nil {
			return nil, false, loadErr
		}
		return tokens, false, nil
	}

	s.logger.Warn("plaintext token file found, re-encrypting in place", "path", s.path)
	if err := s.Save(plain); err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quietgrove/backoffice/pkg/cryptox"
)

// FileStore persists credentials as a JSON file. With a passphrase set, the
// file is sealed with AES-256-GCM so tokens never hit disk in the clear.
type FileStore struct {
	path       string
	passphrase string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a plaintext JSON file store at path. The parent
// directory is created with owner-only permissions.
func NewFileStore(path string) (*FileStore, error) {
	return newFileStore(path, "")
}

// NewSealedFileStore creates a file store whose contents are encrypted under
// the passphrase.
func NewSealedFileStore(path, passphrase string) (*FileStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("credstore: sealed store requires a passphrase")
	}
	return newFileStore(path, passphrase)
}

func newFileStore(path, passphrase string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &FileStore{path: path, passphrase: passphrase}, nil
}

func (s *FileStore) Save(_ context.Context, creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if s.passphrase != "" {
		if data, err = cryptox.Seal(s.passphrase, data); err != nil {
			return fmt.Errorf("failed to seal credentials: %w", err)
		}
	}

	// Write-then-rename so a crash mid-write can't leave a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	if s.passphrase != "" {
		if data, err = cryptox.Open(s.passphrase, data); err != nil {
			return nil, fmt.Errorf("failed to unseal credentials: %w", err)
		}
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &creds, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

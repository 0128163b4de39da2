// Package fs implements a file-backed keyring store, used by agents to
// persist their node credential across restarts.
package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/storage"
)

type keyringStore struct {
	path string
}

func NewKeyringStore(path string) storage.KeyringStore {
	return &keyringStore{
		path: path,
	}
}

func (s *keyringStore) Put(ctx context.Context, kr *keyring.Keyring) error {
	data, err := kr.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	// write-then-rename so a crash never leaves a torn keyring
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".keyring-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *keyringStore) Get(ctx context.Context) (*keyring.Keyring, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return keyring.Unmarshal(data)
}

func (s *keyringStore) Delete(ctx context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	return err
}

package inmemory

import (
	"context"
	"path"
	"sync"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/storage"
)

type keyringStoreBroker struct {
	mu       sync.Mutex
	keyrings map[string][]byte
}

func newKeyringStoreBroker() *keyringStoreBroker {
	return &keyringStoreBroker{
		keyrings: make(map[string][]byte),
	}
}

func (b *keyringStoreBroker) KeyringStore(namespace string, ref *core.Reference) (storage.KeyringStore, error) {
	return &keyringStore{
		broker: b,
		key:    path.Join(namespace, ref.ID),
	}, nil
}

type keyringStore struct {
	broker *keyringStoreBroker
	key    string
}

func (s *keyringStore) Put(ctx context.Context, kr *keyring.Keyring) error {
	data, err := kr.Marshal()
	if err != nil {
		return err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.keyrings[s.key] = data
	return nil
}

func (s *keyringStore) Get(ctx context.Context) (*keyring.Keyring, error) {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	data, ok := s.broker.keyrings[s.key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return keyring.Unmarshal(data)
}

func (s *keyringStore) Delete(ctx context.Context) error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if _, ok := s.broker.keyrings[s.key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.broker.keyrings, s.key)
	return nil
}

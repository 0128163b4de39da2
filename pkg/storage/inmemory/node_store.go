package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/storage"
)

type nodeStore struct {
	mu    sync.RWMutex
	nodes map[string]*core.NodeRecord
}

func newNodeStore() *nodeStore {
	return &nodeStore{
		nodes: make(map[string]*core.NodeRecord),
	}
}

func (s *nodeStore) PutNode(ctx context.Context, node *core.NodeRecord) error {
	if err := node.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// full-record replacement; concurrent puts for the same ID serialize
	// on the store lock and the last writer wins
	s.nodes[node.ID] = node.DeepCopy()
	return nil
}

func (s *nodeStore) GetNode(ctx context.Context, ref *core.Reference) (*core.NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return node.DeepCopy(), nil
}

func (s *nodeStore) UpdateNode(
	ctx context.Context,
	ref *core.Reference,
	mutator storage.NodeMutator,
) (*core.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[ref.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := node.DeepCopy()
	mutator(clone)
	if clone.ID != node.ID {
		return nil, fmt.Errorf("node ID is immutable")
	}
	if !node.Status.CanTransition(clone.Status) {
		return nil, fmt.Errorf("%w: %s -> %s",
			storage.ErrInvalidTransition, node.Status, clone.Status)
	}
	s.nodes[ref.ID] = clone
	return clone.DeepCopy(), nil
}

func (s *nodeStore) DeleteNode(ctx context.Context, ref *core.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[ref.ID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.nodes, ref.ID)
	return nil
}

func (s *nodeStore) ListNodes(ctx context.Context) ([]*core.NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*core.NodeRecord, 0, len(s.nodes))
	for _, node := range s.nodes {
		list = append(list, node.DeepCopy())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}

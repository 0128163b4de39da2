package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/tokens"
)

type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]*core.BootstrapToken
	clock  func() time.Time
}

func newTokenStore(clock func() time.Time) *tokenStore {
	return &tokenStore{
		tokens: make(map[string]*core.BootstrapToken),
		clock:  clock,
	}
}

func (s *tokenStore) CreateToken(
	ctx context.Context,
	ttl time.Duration,
	maxUsages int64,
	opts ...storage.TokenCreateOption,
) (*core.BootstrapToken, error) {
	options := storage.TokenCreateOptions{}
	options.Apply(opts...)
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if maxUsages < 1 {
		return nil, fmt.Errorf("maxUsages must be at least 1")
	}

	token := tokens.NewToken().ToBootstrapToken()
	token.Metadata = core.TokenMetadata{
		ExpiresAt: s.clock().Add(ttl),
		MaxUsages: maxUsages,
		Labels:    options.Labels,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.TokenID] = token
	return token.DeepCopy(), nil
}

func (s *tokenStore) GetToken(ctx context.Context, ref *core.Reference) (*core.BootstrapToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, err := s.getLocked(ref)
	if err != nil {
		return nil, err
	}
	return token.DeepCopy(), nil
}

func (s *tokenStore) ListTokens(ctx context.Context) ([]*core.BootstrapToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	list := make([]*core.BootstrapToken, 0, len(s.tokens))
	for _, token := range s.tokens {
		list = append(list, token.DeepCopy())
	}
	return list, nil
}

func (s *tokenStore) RevokeToken(ctx context.Context, ref *core.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, err := s.getLocked(ref)
	if err != nil {
		return err
	}
	token.Metadata.Revoked = true
	return nil
}

// RedeemToken consumes one use under the store lock. The expiry,
// revocation, and remaining-use checks and the increment are a single
// critical section so that concurrent redemptions of the last use produce
// exactly one winner.
func (s *tokenStore) RedeemToken(ctx context.Context, ref *core.Reference) (*core.BootstrapToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, err := s.getLocked(ref)
	if err != nil {
		return nil, err
	}
	if token.Metadata.Revoked {
		return nil, fmt.Errorf("%w: revoked", storage.ErrTokenInvalid)
	}
	if token.UsesRemaining() == 0 {
		return nil, fmt.Errorf("%w: max usages reached", storage.ErrTokenInvalid)
	}
	token.Metadata.UsageCount++
	return token.DeepCopy(), nil
}

// getLocked returns the live token entry, lazily deleting it if expired.
func (s *tokenStore) getLocked(ref *core.Reference) (*core.BootstrapToken, error) {
	token, ok := s.tokens[ref.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if token.Expired(s.clock()) {
		delete(s.tokens, ref.ID)
		return nil, fmt.Errorf("%w: expired", storage.ErrTokenInvalid)
	}
	return token, nil
}

func (s *tokenStore) expireLocked() {
	now := s.clock()
	for id, token := range s.tokens {
		if token.Expired(now) {
			delete(s.tokens, id)
		}
	}
}

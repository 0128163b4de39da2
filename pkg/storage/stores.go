package storage

import (
	"context"
	"time"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/keyring"
)

// Backend is the full set of stores the gateway needs.
type Backend interface {
	TokenStore
	NodeStore
	KeyringStoreBroker
}

type MutatorFunc[T any] func(T)

type NodeMutator = MutatorFunc[*core.NodeRecord]

type TokenStore interface {
	// CreateToken issues a new bootstrap token valid for ttl and at most
	// maxUsages redemptions. The returned token is the only copy that
	// includes the secret.
	CreateToken(ctx context.Context, ttl time.Duration, maxUsages int64, opts ...TokenCreateOption) (*core.BootstrapToken, error)
	// GetToken returns the stored token, including its secret. Expired
	// tokens are treated as deleted.
	GetToken(ctx context.Context, ref *core.Reference) (*core.BootstrapToken, error)
	// ListTokens returns all unexpired tokens, including revoked ones.
	ListTokens(ctx context.Context) ([]*core.BootstrapToken, error)
	// RevokeToken immediately sets the token's remaining uses to zero. The
	// token stays listed until it expires.
	RevokeToken(ctx context.Context, ref *core.Reference) error
	// RedeemToken atomically consumes one use of the token. Exactly one
	// caller wins the last use under concurrent redemption; all others
	// receive ErrTokenInvalid.
	RedeemToken(ctx context.Context, ref *core.Reference) (*core.BootstrapToken, error)
}

type NodeStore interface {
	// PutNode upserts the full record, keyed by node ID. Last writer wins;
	// there is no field-level merging.
	PutNode(ctx context.Context, node *core.NodeRecord) error
	GetNode(ctx context.Context, ref *core.Reference) (*core.NodeRecord, error)
	// UpdateNode applies the mutator under the store's lock; updates for
	// the same node ID are serialized. Status changes must be legal per
	// core.NodeStatus.CanTransition.
	UpdateNode(ctx context.Context, ref *core.Reference, mutator NodeMutator) (*core.NodeRecord, error)
	// DeleteNode removes a node from the registry. Nodes are never deleted
	// automatically; this is an operator action.
	DeleteNode(ctx context.Context, ref *core.Reference) error
	// ListNodes returns all records ordered by node ID.
	ListNodes(ctx context.Context) ([]*core.NodeRecord, error)
}

type KeyringStore interface {
	Put(ctx context.Context, kr *keyring.Keyring) error
	Get(ctx context.Context) (*keyring.Keyring, error)
	Delete(ctx context.Context) error
}

type KeyringStoreBroker interface {
	KeyringStore(namespace string, ref *core.Reference) (KeyringStore, error)
}

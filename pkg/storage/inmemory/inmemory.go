// Package inmemory implements the storage interfaces with process-local
// maps. It is the backend for single-gateway deployments and tests.
package inmemory

import (
	"time"

	"github.com/outpost-labs/bootplane/pkg/storage"
)

type Backend struct {
	*tokenStore
	*nodeStore
	*keyringStoreBroker
}

var _ storage.Backend = (*Backend)(nil)

type BackendOptions struct {
	clock func() time.Time
}

type BackendOption func(*BackendOptions)

func (o *BackendOptions) apply(opts ...BackendOption) {
	for _, op := range opts {
		op(o)
	}
}

// WithClock overrides the time source, used by tests to control token
// expiry.
func WithClock(clock func() time.Time) BackendOption {
	return func(o *BackendOptions) {
		o.clock = clock
	}
}

func NewBackend(opts ...BackendOption) *Backend {
	options := BackendOptions{
		clock: time.Now,
	}
	options.apply(opts...)
	return &Backend{
		tokenStore:         newTokenStore(options.clock),
		nodeStore:          newNodeStore(),
		keyringStoreBroker: newKeyringStoreBroker(),
	}
}

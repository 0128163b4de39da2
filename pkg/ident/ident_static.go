package ident

import "context"

type staticProvider struct {
	id string
}

// NewStaticProvider returns a Provider with a fixed identifier, used when
// the operator names the node explicitly.
func NewStaticProvider(id string) Provider {
	return &staticProvider{id: id}
}

func (p *staticProvider) UniqueIdentifier(ctx context.Context) (string, error) {
	return p.id, nil
}

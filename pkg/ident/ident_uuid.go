package ident

import (
	"context"

	"github.com/google/uuid"
)

type uuidProvider struct{}

// NewUUIDProvider returns a Provider that generates a random UUID each
// time. Only suitable for throwaway nodes.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) UniqueIdentifier(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

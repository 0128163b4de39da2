// Package ident provides node identity sources. A node's unique
// identifier is what makes enrollment idempotent: re-enrolling with the
// same identity returns the existing registration instead of consuming
// another token use.
package ident

import "context"

type Provider interface {
	UniqueIdentifier(ctx context.Context) (string, error)
}

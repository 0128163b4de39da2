package tokens

import (
	"encoding/hex"

	"github.com/outpost-labs/bootplane/pkg/core"
)

// ToBootstrapToken converts the raw token into its stored representation.
// Metadata is left zeroed; the token store fills it in.
func (t *Token) ToBootstrapToken() *core.BootstrapToken {
	return &core.BootstrapToken{
		TokenID: t.HexID(),
		Secret:  t.HexSecret(),
	}
}

func FromBootstrapToken(t *core.BootstrapToken) (*Token, error) {
	id, err := hex.DecodeString(t.TokenID)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(t.Secret)
	if err != nil {
		return nil, err
	}
	if len(id) != idLength || len(secret) != secretLength {
		return nil, ErrMalformedToken
	}
	return &Token{
		ID:     id,
		Secret: secret,
	}, nil
}

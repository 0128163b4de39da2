package keyring

import (
	"crypto/ed25519"

	"github.com/outpost-labs/bootplane/pkg/pkp"
)

// SharedKeys are the long-lived node credential: two static ed25519 keys
// derived from the 64-byte enrollment shared secret. ClientKey MACs
// node-to-gateway messages, ServerKey MACs gateway-to-node messages.
type SharedKeys struct {
	ClientKey ed25519.PrivateKey `json:"clientKey"`
	ServerKey ed25519.PrivateKey `json:"serverKey"`
}

func NewSharedKeys(secret []byte) *SharedKeys {
	if len(secret) != 64 {
		panic("shared secret must be 64 bytes")
	}
	return &SharedKeys{
		ClientKey: ed25519.NewKeyFromSeed(secret[:32]),
		ServerKey: ed25519.NewKeyFromSeed(secret[32:]),
	}
}

// PKPKey carries the trust-anchor pins the node enrolled with, so it can
// keep authenticating the gateway after the bootstrap token is gone.
type PKPKey struct {
	PinnedKeys []*pkp.PublicKeyPin `json:"pinnedKeys"`
}

func NewPKPKey(pinnedKeys []*pkp.PublicKeyPin) *PKPKey {
	copied := make([]*pkp.PublicKeyPin, len(pinnedKeys))
	for i, pin := range pinnedKeys {
		copied[i] = pin.DeepCopy()
	}
	return &PKPKey{
		PinnedKeys: copied,
	}
}

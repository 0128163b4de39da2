// Package bootstrap implements the join-credential handshake between
// agents and the gateway.
//
// The gateway signs each active bootstrap token with its serving key
// and advertises the detached signatures at /bootstrap/join. An agent
// holding a token can complete the matching signature and present it
// at /bootstrap/auth, which redeems one use of the token, performs an
// ECDH key exchange, and registers the node.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/validation"
)

var (
	// ErrNotReady indicates the gateway has not finished starting up.
	ErrNotReady = errors.New("gateway is not ready")
	// ErrTrustAnchorMismatch indicates the server's public key did not
	// match any configured pin. Never retried.
	ErrTrustAnchorMismatch = errors.New("server public key does not match any trust anchor")
	// ErrTokenInvalid indicates the token was rejected: expired,
	// exhausted, revoked, or unknown. Never retried.
	ErrTokenInvalid = errors.New("bootstrap token rejected")
	// ErrNetworkUnavailable indicates a transient failure reaching the
	// gateway. Retried with backoff.
	ErrNetworkUnavailable = errors.New("gateway unreachable")
	// ErrBootstrapFailed indicates a non-transient handshake failure.
	ErrBootstrapFailed = errors.New("bootstrap failed")

	ErrNoValidSignature = fmt.Errorf("%w: no signature matched the provided token", ErrTokenInvalid)
	ErrInvalidEndpoint  = errors.New("invalid gateway endpoint")
)

// JoinResponse lists the detached JWS signature of every redeemable
// token, keyed by hex token ID.
type JoinResponse struct {
	Signatures map[string][]byte `json:"signatures"`
}

// AuthRequest is the payload of a /bootstrap/auth call. The bearer
// token authenticating the call is the completed JWS.
type AuthRequest struct {
	ClientID string `json:"clientId"`
	// Client's ephemeral x25519 public key.
	ClientPubKey []byte        `json:"clientPubKey"`
	Role         core.NodeRole `json:"role"`
	// Address the gateway should use for health probes.
	AdvertiseAddress string `json:"advertiseAddress"`

	Labels map[string]string `json:"labels,omitempty"`
}

func (r *AuthRequest) Validate() error {
	if err := validation.ValidateID(r.ClientID); err != nil {
		return err
	}
	if len(r.ClientPubKey) != 32 {
		return validation.Error("clientPubKey must be a 32-byte x25519 public key")
	}
	if err := r.Role.Validate(); err != nil {
		return err
	}
	if r.AdvertiseAddress == "" {
		return validation.Error("advertiseAddress is required")
	}
	if r.Labels != nil {
		if err := validation.ValidateLabels(r.Labels); err != nil {
			return err
		}
	}
	return nil
}

// AuthResponse completes the key exchange and echoes the registered
// node record.
type AuthResponse struct {
	// Server's ephemeral x25519 public key.
	ServerPubKey []byte          `json:"serverPubKey"`
	Node         core.NodeRecord `json:"node"`
}

// Result is the outcome of a successful client bootstrap.
type Result struct {
	Node    core.NodeRecord
	Keyring *keyring.Keyring
}

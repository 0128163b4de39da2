package ecdh

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

var ErrInvalidPeerType = errors.New("invalid peer type")

type EphemeralKeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
}

type PeerType int

const (
	PeerTypeClient PeerType = iota
	PeerTypeServer
)

type PeerPublicKey struct {
	PublicKey []byte
	PeerType  PeerType
}

// NewEphemeralKeyPair creates a new x25519 keypair for use in ECDH key
// exchange during enrollment.
func NewEphemeralKeyPair() (EphemeralKeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return EphemeralKeyPair{}, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return EphemeralKeyPair{}, err
	}
	return EphemeralKeyPair{
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

// DeriveSharedSecret derives a 64-byte shared secret given one party's
// ephemeral keypair and the other party's ephemeral public key. The
// secret is computed as
//
//	blake2b-512(q || client-pub || server-pub)
//
// where q is the 32-byte x25519 shared secret. Both sides must order the
// public keys identically, so the peer's role is passed along with its
// key.
func DeriveSharedSecret(ours EphemeralKeyPair, theirs PeerPublicKey) ([]byte, error) {
	q, err := curve25519.X25519(ours.PrivateKey, theirs.PublicKey)
	if err != nil {
		return nil, err
	}
	hash, _ := blake2b.New512(nil)
	hash.Write(q)
	switch theirs.PeerType {
	case PeerTypeClient:
		hash.Write(theirs.PublicKey)
		hash.Write(ours.PublicKey)
	case PeerTypeServer:
		hash.Write(ours.PublicKey)
		hash.Write(theirs.PublicKey)
	default:
		return nil, ErrInvalidPeerType
	}
	return hash.Sum(nil), nil
}

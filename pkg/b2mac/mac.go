package b2mac

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidMAC = errors.New("MAC verification failed")

// New512 computes a keyed blake2b-512 MAC over the given node ID, nonce,
// and payload.
func New512(id []byte, nonce uuid.UUID, payload []byte, key ed25519.PrivateKey) ([]byte, error) {
	mac, err := blake2b.New512(key)
	if err != nil {
		return nil, err
	}
	mac.Write(id)
	mac.Write(nonce[:])
	mac.Write(payload)
	return mac.Sum(nil), nil
}

func Verify(mac []byte, id []byte, nonce uuid.UUID, payload []byte, key ed25519.PrivateKey) error {
	m, err := blake2b.New512(key)
	if err != nil {
		return err
	}
	m.Write(id)
	m.Write(nonce[:])
	m.Write(payload)
	if subtle.ConstantTimeCompare(m.Sum(nil), mac) != 1 {
		return ErrInvalidMAC
	}
	return nil
}

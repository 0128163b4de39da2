package keyring

import (
	"encoding/json"
	"errors"
)

var (
	ErrNoSharedKeys = errors.New("keyring does not contain shared keys")
)

// Keyring is the set of credentials a node holds after enrollment. It is
// persisted locally on the node and mirrored by the gateway, keyed by
// node ID.
type Keyring struct {
	SharedKeys *SharedKeys `json:"sharedKeys,omitempty"`
	PKPKey     *PKPKey     `json:"pkpKey,omitempty"`
}

func New(sharedKeys *SharedKeys, pkpKey *PKPKey) *Keyring {
	return &Keyring{
		SharedKeys: sharedKeys,
		PKPKey:     pkpKey,
	}
}

// Merge returns a new keyring preferring keys from the other keyring
// where both are set.
func (kr *Keyring) Merge(other *Keyring) *Keyring {
	merged := &Keyring{
		SharedKeys: kr.SharedKeys,
		PKPKey:     kr.PKPKey,
	}
	if other.SharedKeys != nil {
		merged.SharedKeys = other.SharedKeys
	}
	if other.PKPKey != nil {
		merged.PKPKey = other.PKPKey
	}
	return merged
}

func (kr *Keyring) Marshal() ([]byte, error) {
	return json.Marshal(kr)
}

func Unmarshal(data []byte) (*Keyring, error) {
	kr := &Keyring{}
	if err := json.Unmarshal(data, kr); err != nil {
		return nil, err
	}
	return kr, nil
}

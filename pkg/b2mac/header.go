package b2mac

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EncodeAuthHeader generates the value of the Authorization header for a
// MAC with the given node ID, nonce, and mac. The nonce must be a v4
// UUID.
func EncodeAuthHeader(id string, nonce uuid.UUID, mac []byte) (string, error) {
	if nonce.Version() != 4 {
		return "", errors.New("nonce is not a v4 UUID")
	}
	encoded := base64.RawURLEncoding.EncodeToString(mac)
	return fmt.Sprintf(`MAC id=%q,nonce=%q,mac=%q`, id, nonce.String(), encoded), nil
}

// DecodeAuthHeader decodes the value of an Authorization header into its
// constituent parts: the node ID, the nonce, and the unencoded MAC.
func DecodeAuthHeader(header string) (id string, nonce uuid.UUID, mac []byte, err error) {
	if !strings.HasPrefix(header, "MAC ") {
		return "", uuid.Nil, nil, errors.New("incorrect authorization type")
	}
	trimmed := strings.TrimSpace(strings.TrimPrefix(header, "MAC"))
	for _, pair := range strings.Split(trimmed, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch strings.TrimSpace(key) {
		case "id":
			id = value
		case "nonce":
			nonce, err = uuid.Parse(value)
			if err != nil {
				return "", uuid.Nil, nil, err
			}
			if nonce.Version() != 4 {
				return "", uuid.Nil, nil, errors.New("nonce is not a v4 UUID")
			}
		case "mac":
			mac, err = base64.RawURLEncoding.DecodeString(value)
			if err != nil {
				return "", uuid.Nil, nil, err
			}
		}
	}
	if id == "" {
		return "", uuid.Nil, nil, errors.New("header is missing id")
	}
	if nonce == uuid.Nil {
		return "", uuid.Nil, nil, errors.New("header is missing nonce")
	}
	if mac == nil {
		return "", uuid.Nil, nil, errors.New("header is missing mac")
	}
	return
}

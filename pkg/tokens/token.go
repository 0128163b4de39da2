package tokens

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jws"

	"github.com/outpost-labs/bootplane/pkg/core"
)

const (
	idLength     = 6
	secretLength = 26
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrNoSignature    = errors.New("token is not signed")
)

// Token is the wire representation of a bootstrap token: a short public
// ID used to look the token up, and the secret proper. Both halves come
// from a single sha256 sum over 256 bytes of entropy.
type Token struct {
	ID     []byte `json:"id"`               // bytes 0-5
	Secret []byte `json:"secret,omitempty"` // bytes 6-31
}

// NewToken creates a new bootstrap token by reading bytes from the given
// random source. The default source is crypto/rand.Reader.
func NewToken(source ...io.Reader) *Token {
	entropy := rand.Reader
	if len(source) > 0 {
		entropy = source[0]
	}
	buf := make([]byte, 256)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		panic(err)
	}
	sum := sha256.Sum256(buf)
	return &Token{
		ID:     sum[:idLength],
		Secret: sum[idLength:],
	}
}

func (t *Token) EncodeJSON() []byte {
	data, err := json.Marshal(t)
	if err != nil {
		panic(err)
	}
	return data
}

// EncodeHex returns the token in the form "<id>.<secret>", both parts
// hex-encoded. This is the format operators copy around.
func (t *Token) EncodeHex() string {
	return hex.EncodeToString(t.ID) + "." + hex.EncodeToString(t.Secret)
}

func (t *Token) HexID() string {
	return hex.EncodeToString(t.ID)
}

func (t *Token) HexSecret() string {
	return hex.EncodeToString(t.Secret)
}

func (t *Token) Reference() *core.Reference {
	return &core.Reference{ID: t.HexID()}
}

func ParseJSON(data []byte) (*Token, error) {
	t := &Token{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}
	if len(t.ID) != idLength || len(t.Secret) != secretLength {
		return nil, ErrMalformedToken
	}
	return t, nil
}

func ParseHex(str string) (*Token, error) {
	parts := bytes.Split([]byte(str), []byte("."))
	if len(parts) != 2 ||
		len(parts[0]) != hex.EncodedLen(idLength) ||
		len(parts[1]) != hex.EncodedLen(secretLength) {
		return nil, ErrMalformedToken
	}
	t := &Token{
		ID:     make([]byte, idLength),
		Secret: make([]byte, secretLength),
	}
	if n, err := hex.Decode(t.ID, parts[0]); err != nil || n != idLength {
		return nil, ErrMalformedToken
	}
	if n, err := hex.Decode(t.Secret, parts[1]); err != nil || n != secretLength {
		return nil, ErrMalformedToken
	}
	return t, nil
}

// SignDetached returns a JWS of the form Header..Signature, where the
// payload (the complete token JSON) has been detached. The server hands
// these out to prospective nodes; only a client that already knows the
// full token can reconstruct the payload and complete the JWS.
func (t *Token) SignDetached(key crypto.PrivateKey) ([]byte, error) {
	jsonData, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	sig, err := jws.Sign(jsonData, jwa.EdDSA, key)
	if err != nil {
		return nil, err
	}
	firstIndex := bytes.IndexByte(sig, '.')
	lastIndex := bytes.LastIndexByte(sig, '.')
	buf := new(bytes.Buffer)
	buf.Write(sig[:firstIndex+1])
	buf.Write(sig[lastIndex:])
	return buf.Bytes(), nil
}

// CompleteDetached reattaches the token to the detached signature,
// returning a complete JWS. The signature is not verified; a client
// that received the detached JWS over a pinned TLS connection has no
// independent copy of the signing key.
func (t *Token) CompleteDetached(sig []byte) ([]byte, error) {
	parts := bytes.Split(sig, []byte("."))
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments", ErrMalformedToken)
	}
	if len(parts[1]) != 0 {
		return nil, fmt.Errorf("%w: signature contains a payload", ErrMalformedToken)
	}
	jsonData, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, base64.RawURLEncoding.EncodedLen(len(jsonData)))
	base64.RawURLEncoding.Encode(payload, jsonData)
	buf := new(bytes.Buffer)
	buf.Write(parts[0])
	buf.WriteByte('.')
	buf.Write(payload)
	buf.WriteByte('.')
	buf.Write(parts[2])
	return buf.Bytes(), nil
}

// VerifyDetached reattaches the token to the detached signature and
// verifies it with the given key, returning the complete JWS on success.
func (t *Token) VerifyDetached(sig []byte, key any) ([]byte, error) {
	completed, err := t.CompleteDetached(sig)
	if err != nil {
		return nil, err
	}
	if priv, ok := key.(ed25519.PrivateKey); ok {
		key = priv.Public()
	}
	if _, err := jws.Verify(completed, jwa.EdDSA, key); err != nil {
		return nil, err
	}
	return completed, nil
}

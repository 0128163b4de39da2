package pkp

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrMissingAlgorithm     = errors.New("missing algorithm")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrMalformedPin         = errors.New("malformed pin")
)

type Alg string

const (
	AlgSHA256 Alg = "sha256"
	AlgB2B256 Alg = "b2b256"
)

// PublicKeyPin is a fingerprint of a certificate's SubjectPublicKeyInfo.
// Joining nodes carry one or more pins as their trust anchor and refuse to
// talk to a control plane whose serving certificate matches none of them.
type PublicKeyPin struct {
	Algorithm   Alg    `json:"alg"`
	Fingerprint []byte `json:"fingerprint"`
}

func New(cert *x509.Certificate, alg Alg) (*PublicKeyPin, error) {
	switch alg {
	case AlgSHA256:
		d := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		return &PublicKeyPin{Algorithm: AlgSHA256, Fingerprint: d[:]}, nil
	case AlgB2B256:
		d := blake2b.Sum256(cert.RawSubjectPublicKeyInfo)
		return &PublicKeyPin{Algorithm: AlgB2B256, Fingerprint: d[:]}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
}

func NewSha256(cert *x509.Certificate) *PublicKeyPin {
	pin, _ := New(cert, AlgSHA256)
	return pin
}

func NewBlake2b256(cert *x509.Certificate) *PublicKeyPin {
	pin, _ := New(cert, AlgB2B256)
	return pin
}

func (p *PublicKeyPin) Validate() error {
	switch p.Algorithm {
	case AlgSHA256, AlgB2B256:
	default:
		return ErrUnsupportedAlgorithm
	}
	if len(p.Fingerprint) != 32 {
		return ErrMalformedPin
	}
	return nil
}

// Encode returns the pin in the form "<alg>:<base64url fingerprint>",
// the format used on the command line and in config files.
func (p *PublicKeyPin) Encode() string {
	return fmt.Sprintf("%s:%s", p.Algorithm, base64.RawURLEncoding.EncodeToString(p.Fingerprint))
}

func (p *PublicKeyPin) Equal(other *PublicKeyPin) bool {
	return p.Algorithm == other.Algorithm &&
		subtle.ConstantTimeCompare(p.Fingerprint, other.Fingerprint) == 1
}

func (p *PublicKeyPin) DeepCopy() *PublicKeyPin {
	return &PublicKeyPin{
		Algorithm:   p.Algorithm,
		Fingerprint: append([]byte{}, p.Fingerprint...),
	}
}

func DecodePin(pin string) (*PublicKeyPin, error) {
	alg, fingerprint, found := strings.Cut(pin, ":")
	if !found {
		return nil, ErrMissingAlgorithm
	}
	fp, err := base64.RawURLEncoding.DecodeString(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPin, err)
	}
	switch Alg(alg) {
	case AlgSHA256, AlgB2B256:
		p := &PublicKeyPin{Algorithm: Alg(alg), Fingerprint: fp}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
}

// DecodePins decodes a list of encoded pins, failing on the first bad one.
func DecodePins(pins []string) ([]*PublicKeyPin, error) {
	decoded := make([]*PublicKeyPin, 0, len(pins))
	for _, pin := range pins {
		p, err := DecodePin(pin)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, p)
	}
	return decoded, nil
}

package pkp

import (
	"crypto/tls"
	"errors"
	"fmt"
)

var (
	ErrNoPins      = errors.New("no pins provided")
	ErrPinMismatch = errors.New("peer certificate does not match any pinned fingerprint")
)

// TLSConfig builds a client TLS config that authenticates the server
// exclusively by public key pin. Standard chain verification is disabled
// (the serving certificate is expected to be self-signed); instead, each
// certificate in the peer's chain must be signed by its successor, and at
// least one of them must match a pin.
func TLSConfig(pins []*PublicKeyPin) (*tls.Config, error) {
	if len(pins) == 0 {
		return nil, ErrNoPins
	}
	copiedPins := make([]*PublicKeyPin, len(pins))
	for i, pin := range pins {
		if err := pin.Validate(); err != nil {
			return nil, err
		}
		copiedPins[i] = pin.DeepCopy()
	}

	/* #nosec G402 -- InsecureSkipVerify allowed in conjunction with VerifyConnection */
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			peerCerts := cs.PeerCertificates
			for i := 0; i < len(peerCerts)-1; i++ {
				if err := peerCerts[i].CheckSignatureFrom(peerCerts[i+1]); err != nil {
					return fmt.Errorf("%w: %s", ErrPinMismatch, err)
				}
			}
			for _, peerCert := range peerCerts {
				for _, pin := range copiedPins {
					peerCertPin, err := New(peerCert, pin.Algorithm)
					if err != nil {
						continue
					}
					if pin.Equal(peerCertPin) {
						return nil
					}
				}
			}
			return ErrPinMismatch
		},
	}, nil
}

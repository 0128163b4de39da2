package management

import (
	"errors"
	"time"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/validation"
)

var (
	// ErrNotReady is returned while the gateway is still starting up and
	// cannot answer authoritatively.
	ErrNotReady = errors.New("gateway is not ready")
	// ErrNetworkUnavailable indicates the management endpoint could not
	// be reached.
	ErrNetworkUnavailable = errors.New("management endpoint unreachable")

	ErrNotFound = errors.New("not found")
)

type CreateTokenRequest struct {
	// TTL is a duration string, e.g. "1h".
	TTL       string            `json:"ttl"`
	MaxUsages int64             `json:"maxUsages"`
	Labels    map[string]string `json:"labels,omitempty"`
}

func (r *CreateTokenRequest) Validate() error {
	ttl, err := time.ParseDuration(r.TTL)
	if err != nil {
		return validation.Errorf("invalid ttl %q: %s", r.TTL, err)
	}
	if ttl <= 0 {
		return validation.Error("ttl must be positive")
	}
	if r.MaxUsages < 1 {
		return validation.Error("maxUsages must be at least 1")
	}
	if r.Labels != nil {
		if err := validation.ValidateLabels(r.Labels); err != nil {
			return err
		}
	}
	return nil
}

type TokenList struct {
	Items []*core.BootstrapToken `json:"items"`
}

type NodeList struct {
	Items []*core.NodeRecord `json:"items"`
}

// CertInfo describes one certificate in the gateway's serving chain.
// Fingerprint is the encoded public key pin of the certificate, which is
// what agents put in their bootstrap config.
type CertInfo struct {
	Issuer      string    `json:"issuer"`
	Subject     string    `json:"subject"`
	IsCA        bool      `json:"isCA"`
	NotBefore   time.Time `json:"notBefore"`
	NotAfter    time.Time `json:"notAfter"`
	Fingerprint string    `json:"fingerprint"`
}

type CertsResponse struct {
	Chain []CertInfo `json:"chain"`
}

// StatusResponse summarizes the registry for the status CLI command.
type StatusResponse struct {
	Ready      bool                      `json:"ready"`
	NodeCounts map[core.NodeStatus]int64 `json:"nodeCounts"`
	TokenCount int64                     `json:"tokenCount"`
}

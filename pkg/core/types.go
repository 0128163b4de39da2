package core

import (
	"time"
)

// Reference identifies a stored object (token or node) by ID.
type Reference struct {
	ID string `json:"id"`
}

func (r *Reference) Equal(other *Reference) bool {
	return r.ID == other.ID
}

type NodeRole string

const (
	NodeRoleControlPlane NodeRole = "controlplane"
	NodeRoleWorker       NodeRole = "worker"
)

type NodeStatus string

const (
	// Token redeemed, runtime handshake in progress.
	NodeStatusPending NodeStatus = "pending"
	// At least one health probe has succeeded.
	NodeStatusReady NodeStatus = "ready"
	// A health probe failed after the node was ready.
	NodeStatusUnreachable NodeStatus = "unreachable"
)

// CanTransition reports whether a node may move to the given status.
// Pending is an initial state only; once a node has been ready it can
// oscillate between ready and unreachable but never return to pending.
func (s NodeStatus) CanTransition(to NodeStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case NodeStatusPending:
		return to == NodeStatusReady
	case NodeStatusReady:
		return to == NodeStatusUnreachable
	case NodeStatusUnreachable:
		return to == NodeStatusReady
	}
	return false
}

// NodeRecord is the registry's view of an enrolled node. Records are
// created when a bootstrap token is redeemed and are only ever removed by
// an operator.
type NodeRecord struct {
	ID               string            `json:"id"`
	Role             NodeRole          `json:"role"`
	AdvertiseAddress string            `json:"advertiseAddress,omitempty"`
	Labels           map[string]string `json:"labels,omitempty"`
	JoinedAt         time.Time         `json:"joinedAt"`
	Status           NodeStatus        `json:"status"`
	LastSeen         time.Time         `json:"lastSeen,omitempty"`
}

func (n *NodeRecord) Reference() *Reference {
	return &Reference{ID: n.ID}
}

func (n *NodeRecord) DeepCopy() *NodeRecord {
	clone := *n
	if n.Labels != nil {
		clone.Labels = make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			clone.Labels[k] = v
		}
	}
	return &clone
}

// BootstrapToken is the stored form of an enrollment credential. The
// secret is hex-encoded and is only populated on the response to the
// original create call; reads through the management API return redacted
// copies.
type BootstrapToken struct {
	TokenID  string        `json:"tokenID"`
	Secret   string        `json:"secret,omitempty"`
	Metadata TokenMetadata `json:"metadata"`
}

type TokenMetadata struct {
	ExpiresAt  time.Time         `json:"expiresAt"`
	MaxUsages  int64             `json:"maxUsages"`
	UsageCount int64             `json:"usageCount"`
	Revoked    bool              `json:"revoked,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

func (t *BootstrapToken) Reference() *Reference {
	return &Reference{ID: t.TokenID}
}

func (t *BootstrapToken) Expired(now time.Time) bool {
	return now.After(t.Metadata.ExpiresAt)
}

func (t *BootstrapToken) UsesRemaining() int64 {
	if t.Metadata.Revoked {
		return 0
	}
	if remaining := t.Metadata.MaxUsages - t.Metadata.UsageCount; remaining > 0 {
		return remaining
	}
	return 0
}

// Redeemable reports whether the token would be accepted for enrollment
// at the given time.
func (t *BootstrapToken) Redeemable(now time.Time) bool {
	return !t.Expired(now) && t.UsesRemaining() > 0
}

// Redacted returns a copy safe to return from list/get APIs: the secret
// is stripped, everything else is preserved.
func (t *BootstrapToken) Redacted() *BootstrapToken {
	clone := t.DeepCopy()
	clone.Secret = ""
	return clone
}

func (t *BootstrapToken) DeepCopy() *BootstrapToken {
	clone := *t
	if t.Metadata.Labels != nil {
		clone.Metadata.Labels = make(map[string]string, len(t.Metadata.Labels))
		for k, v := range t.Metadata.Labels {
			clone.Metadata.Labels[k] = v
		}
	}
	return &clone
}

package v1beta1

import (
	"github.com/outpost-labs/bootplane/pkg/config/meta"
)

type AgentConfig struct {
	meta.TypeMeta `json:",inline"`

	Spec AgentConfigSpec `json:"spec,omitempty"`
}

type AgentConfigSpec struct {
	// Address the agent's health endpoint binds to.
	ListenAddress string `json:"listenAddress,omitempty"`
	// Address other cluster members (the gateway in particular) should
	// use to reach this agent. Defaults to ListenAddress.
	AdvertiseAddress string `json:"advertiseAddress,omitempty"`
	// Gateway bootstrap endpoint, e.g. "https://gateway:9090".
	GatewayAddress string `json:"gatewayAddress,omitempty"`
	// Role requested at enrollment: "controlplane" or "worker".
	Role string `json:"role,omitempty"`
	// File holding the node's stable identity. Created on first use.
	IdentityFile string `json:"identityFile,omitempty"`
	// File holding the node's keyring after enrollment.
	KeyringFile string `json:"keyringFile,omitempty"`

	// Bootstrap credentials. Ignored once a keyring exists.
	Bootstrap *BootstrapSpec `json:"bootstrap,omitempty"`
}

type BootstrapSpec struct {
	// Hex-encoded bootstrap token ("<id>.<secret>").
	Token string `json:"token,omitempty"`
	// Encoded public key pins of the gateway ("alg:fingerprint").
	Pins []string `json:"pins,omitempty"`
}

func (s *AgentConfigSpec) SetDefaults() {
	if s.ListenAddress == "" {
		s.ListenAddress = ":8080"
	}
	if s.Role == "" {
		s.Role = "worker"
	}
	if s.AdvertiseAddress == "" {
		s.AdvertiseAddress = s.ListenAddress
	}
	if s.IdentityFile == "" {
		s.IdentityFile = "/var/lib/bootplane/node-id"
	}
	if s.KeyringFile == "" {
		s.KeyringFile = "/var/lib/bootplane/keyring"
	}
}

package v1beta1

import (
	"github.com/outpost-labs/bootplane/pkg/config/meta"
)

type GatewayConfig struct {
	meta.TypeMeta `json:",inline"`

	Spec GatewayConfigSpec `json:"spec,omitempty"`
}

type GatewayConfigSpec struct {
	// Address the TLS bootstrap listener binds to.
	ListenAddress string `json:"listenAddress,omitempty"`
	// Address of the plaintext management API, normally bound to
	// localhost.
	ManagementListenAddress string `json:"managementListenAddress,omitempty"`
	// Address of the metrics/healthz/pprof router.
	MetricsListenAddress string `json:"metricsListenAddress,omitempty"`
	// Hostname placed in a generated self-signed serving certificate.
	Hostname string `json:"hostname,omitempty"`

	Certs       CertsSpec       `json:"certs,omitempty"`
	HealthCheck HealthCheckSpec `json:"healthCheck,omitempty"`

	TrustedProxies []string `json:"trustedProxies,omitempty"`
}

type CertsSpec struct {
	// Path to a PEM encoded serving certificate. If empty, an ephemeral
	// self-signed certificate is generated at startup. The key must be
	// ed25519; token signatures use EdDSA.
	ServingCert string `json:"servingCert,omitempty"`
	// Path to the PEM encoded serving key.
	ServingKey string `json:"servingKey,omitempty"`
}

type HealthCheckSpec struct {
	// Probe interval, e.g. "30s". Zero disables the monitor.
	Interval string `json:"interval,omitempty"`
	// Per-probe timeout, e.g. "5s".
	Timeout string `json:"timeout,omitempty"`
}

func (s *GatewayConfigSpec) SetDefaults() {
	if s.ListenAddress == "" {
		s.ListenAddress = ":9090"
	}
	if s.ManagementListenAddress == "" {
		s.ManagementListenAddress = "127.0.0.1:9190"
	}
	if s.MetricsListenAddress == "" {
		s.MetricsListenAddress = "127.0.0.1:9290"
	}
	if s.Hostname == "" {
		s.Hostname = "localhost"
	}
	if s.HealthCheck.Interval == "" {
		s.HealthCheck.Interval = "30s"
	}
	if s.HealthCheck.Timeout == "" {
		s.HealthCheck.Timeout = "5s"
	}
}

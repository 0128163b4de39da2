// Package health drives the node status lifecycle. The gateway probes
// each enrolled node's health endpoint on a fixed interval and records
// the outcome in the registry.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/outpost-labs/bootplane/pkg/b2mac"
	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/storage"
)

type Monitor struct {
	MonitorOptions
	nodeStore     storage.NodeStore
	keyringBroker storage.KeyringStoreBroker

	probesTotal  *prometheus.CounterVec
	probeLatency prometheus.Histogram
}

type MonitorOptions struct {
	interval   time.Duration
	timeout    time.Duration
	lg         *zap.SugaredLogger
	httpClient *http.Client
	registerer prometheus.Registerer
}

type MonitorOption func(*MonitorOptions)

func (o *MonitorOptions) apply(opts ...MonitorOption) {
	for _, op := range opts {
		op(o)
	}
}

func WithInterval(interval time.Duration) MonitorOption {
	return func(o *MonitorOptions) {
		o.interval = interval
	}
}

func WithProbeTimeout(timeout time.Duration) MonitorOption {
	return func(o *MonitorOptions) {
		o.timeout = timeout
	}
}

func WithLogger(lg *zap.SugaredLogger) MonitorOption {
	return func(o *MonitorOptions) {
		o.lg = lg
	}
}

// WithHTTPClient overrides the probe transport.
func WithHTTPClient(client *http.Client) MonitorOption {
	return func(o *MonitorOptions) {
		o.httpClient = client
	}
}

func WithMetricsRegisterer(registerer prometheus.Registerer) MonitorOption {
	return func(o *MonitorOptions) {
		o.registerer = registerer
	}
}

func NewMonitor(
	nodeStore storage.NodeStore,
	keyringBroker storage.KeyringStoreBroker,
	opts ...MonitorOption,
) *Monitor {
	options := MonitorOptions{
		interval:   30 * time.Second,
		timeout:    5 * time.Second,
		lg:         logger.New().Named("health"),
		httpClient: http.DefaultClient,
	}
	options.apply(opts...)
	m := &Monitor{
		MonitorOptions: options,
		nodeStore:      nodeStore,
		keyringBroker:  keyringBroker,
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bootplane",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Health probes by outcome.",
		}, []string{"outcome"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bootplane",
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Health probe round-trip time.",
		}),
	}
	if options.registerer != nil {
		options.registerer.MustRegister(m.probesTotal, m.probeLatency)
	}
	return m
}

// Run probes all nodes once immediately, then on every interval tick
// until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	nodes, err := m.nodeStore.ListNodes(ctx)
	if err != nil {
		m.lg.With(zap.Error(err)).Error("failed to list nodes")
		return
	}
	var wg sync.WaitGroup
	for _, node := range nodes {
		wg.Add(1)
		go func(node *core.NodeRecord) {
			defer wg.Done()
			m.probeAndRecord(ctx, node)
		}(node)
	}
	wg.Wait()
}

func (m *Monitor) probeAndRecord(ctx context.Context, node *core.NodeRecord) {
	lg := m.lg.With("node", node.ID)
	start := time.Now()
	err := m.Probe(ctx, node)
	m.probeLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.probesTotal.WithLabelValues("failure").Inc()
		lg.With(zap.Error(err)).Debug("health probe failed")
		m.recordFailure(ctx, node)
		return
	}
	m.probesTotal.WithLabelValues("success").Inc()
	m.recordSuccess(ctx, node)
}

// Probe performs a single MAC-authenticated health check against the
// node's advertise address.
func (m *Monitor) Probe(ctx context.Context, node *core.NodeRecord) error {
	kr, err := m.nodeKeyring(ctx, node)
	if err != nil {
		return fmt.Errorf("no keyring for node: %w", err)
	}
	if kr.SharedKeys == nil {
		return keyring.ErrNoSharedKeys
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s/healthz", node.AdvertiseAddress), nil)
	if err != nil {
		return err
	}
	nonce := uuid.New()
	mac, err := b2mac.New512([]byte(node.ID), nonce, nil, kr.SharedKeys.ServerKey)
	if err != nil {
		return err
	}
	header, err := b2mac.EncodeAuthHeader(node.ID, nonce, mac)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", header)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func (m *Monitor) nodeKeyring(ctx context.Context, node *core.NodeRecord) (*keyring.Keyring, error) {
	krStore, err := m.keyringBroker.KeyringStore(bootstrap.KeyringNamespace, node.Reference())
	if err != nil {
		return nil, err
	}
	return krStore.Get(ctx)
}

func (m *Monitor) recordSuccess(ctx context.Context, node *core.NodeRecord) {
	_, err := m.nodeStore.UpdateNode(ctx, node.Reference(), func(n *core.NodeRecord) {
		n.Status = core.NodeStatusReady
		n.LastSeen = time.Now()
	})
	if err != nil {
		m.lg.With(zap.Error(err), "node", node.ID).Error("failed to record probe success")
	}
}

// recordFailure marks a ready node unreachable. Pending nodes stay
// pending until their first successful probe, and LastSeen is never
// touched on failure.
func (m *Monitor) recordFailure(ctx context.Context, node *core.NodeRecord) {
	_, err := m.nodeStore.UpdateNode(ctx, node.Reference(), func(n *core.NodeRecord) {
		if n.Status == core.NodeStatusReady {
			n.Status = core.NodeStatusUnreachable
		}
	})
	if err != nil {
		m.lg.With(zap.Error(err), "node", node.ID).Error("failed to record probe failure")
	}
}

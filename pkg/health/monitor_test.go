package health_test

import (
	"context"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/outpost-labs/bootplane/pkg/b2mac"
	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/health"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/storage/inmemory"
)

// fakeAgent serves a MAC-authenticated health endpoint the way a real
// agent does, with a switch to simulate an outage.
type fakeAgent struct {
	id      string
	keys    *keyring.SharedKeys
	healthy atomic.Bool
	server  *httptest.Server
}

func newFakeAgent(id string) *fakeAgent {
	secret := make([]byte, 64)
	_, err := rand.Read(secret)
	Expect(err).NotTo(HaveOccurred())
	a := &fakeAgent{
		id:   id,
		keys: keyring.NewSharedKeys(secret),
	}
	a.healthy.Store(true)
	a.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		id, nonce, mac, err := b2mac.DecodeAuthHeader(r.Header.Get("Authorization"))
		if err != nil || id != a.id {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := b2mac.Verify(mac, []byte(id), nonce, nil, a.keys.ServerKey); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	DeferCleanup(a.server.Close)
	return a
}

func (a *fakeAgent) addr() string {
	return strings.TrimPrefix(a.server.URL, "http://")
}

func addNode(backend *inmemory.Backend, agent *fakeAgent, status core.NodeStatus) *core.NodeRecord {
	node := &core.NodeRecord{
		ID:               agent.id,
		Role:             core.NodeRoleWorker,
		AdvertiseAddress: agent.addr(),
		JoinedAt:         time.Now(),
		Status:           status,
	}
	Expect(backend.PutNode(context.Background(), node)).To(Succeed())
	krStore, err := backend.KeyringStore(bootstrap.KeyringNamespace, node.Reference())
	Expect(err).NotTo(HaveOccurred())
	Expect(krStore.Put(context.Background(), keyring.New(agent.keys, nil))).To(Succeed())
	return node
}

var _ = Describe("Health Monitor", func() {
	var backend *inmemory.Backend
	var monitor *health.Monitor
	var ctx context.Context
	var cancel context.CancelFunc

	BeforeEach(func() {
		backend = inmemory.NewBackend()
		monitor = health.NewMonitor(backend, backend,
			health.WithInterval(20*time.Millisecond),
			health.WithProbeTimeout(time.Second),
			health.WithLogger(logger.NewNop()),
			health.WithMetricsRegisterer(prometheus.NewRegistry()),
		)
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
	})

	status := func(id string) core.NodeStatus {
		node, err := backend.GetNode(context.Background(), &core.Reference{ID: id})
		Expect(err).NotTo(HaveOccurred())
		return node.Status
	}

	It("should mark a pending node ready after its first successful probe", func() {
		agent := newFakeAgent("node-1")
		addNode(backend, agent, core.NodeStatusPending)

		go monitor.Run(ctx)
		Eventually(func() core.NodeStatus {
			return status("node-1")
		}).Should(Equal(core.NodeStatusReady))

		node, err := backend.GetNode(context.Background(), &core.Reference{ID: "node-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(node.LastSeen).NotTo(BeZero())
	})

	It("should keep a pending node pending while probes fail", func() {
		agent := newFakeAgent("node-1")
		agent.healthy.Store(false)
		addNode(backend, agent, core.NodeStatusPending)

		go monitor.Run(ctx)
		Consistently(func() core.NodeStatus {
			return status("node-1")
		}, 200*time.Millisecond).Should(Equal(core.NodeStatusPending))

		node, err := backend.GetNode(context.Background(), &core.Reference{ID: "node-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(node.LastSeen).To(BeZero())
	})

	It("should move nodes between ready and unreachable as probes flip", func() {
		agent := newFakeAgent("node-1")
		addNode(backend, agent, core.NodeStatusPending)

		go monitor.Run(ctx)
		Eventually(func() core.NodeStatus {
			return status("node-1")
		}).Should(Equal(core.NodeStatusReady))

		lastSeen := func() time.Time {
			node, err := backend.GetNode(context.Background(), &core.Reference{ID: "node-1"})
			Expect(err).NotTo(HaveOccurred())
			return node.LastSeen
		}

		agent.healthy.Store(false)
		Eventually(func() core.NodeStatus {
			return status("node-1")
		}).Should(Equal(core.NodeStatusUnreachable))
		seenBeforeRecovery := lastSeen()

		agent.healthy.Store(true)
		Eventually(func() core.NodeStatus {
			return status("node-1")
		}).Should(Equal(core.NodeStatusReady))
		Expect(lastSeen()).To(BeTemporally(">=", seenBeforeRecovery))
	})

	It("should not mark a node ready if its keyring does not match", func() {
		agent := newFakeAgent("node-1")
		node := addNode(backend, agent, core.NodeStatusPending)

		// Overwrite the stored keyring with unrelated keys.
		otherSecret := make([]byte, 64)
		_, err := rand.Read(otherSecret)
		Expect(err).NotTo(HaveOccurred())
		krStore, err := backend.KeyringStore(bootstrap.KeyringNamespace, node.Reference())
		Expect(err).NotTo(HaveOccurred())
		Expect(krStore.Put(context.Background(), keyring.New(keyring.NewSharedKeys(otherSecret), nil))).To(Succeed())

		go monitor.Run(ctx)
		Consistently(func() core.NodeStatus {
			return status("node-1")
		}, 200*time.Millisecond).Should(Equal(core.NodeStatusPending))
	})
})

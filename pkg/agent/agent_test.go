package agent_test

import (
	"context"
	"crypto/tls"
	"net"
	"net/http/httptest"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/outpost-labs/bootplane/pkg/agent"
	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/config/v1beta1"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/health"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/storage/inmemory"
	"github.com/outpost-labs/bootplane/pkg/tokens"
	"github.com/outpost-labs/bootplane/pkg/util"
)

type gatewayFixture struct {
	backend *inmemory.Backend
	server  *httptest.Server
	pin     *pkp.PublicKeyPin
}

func startGateway() *gatewayFixture {
	cert, err := util.NewSelfSignedCert("localhost")
	Expect(err).NotTo(HaveOccurred())

	backend := inmemory.NewBackend()
	handler := bootstrap.ServerConfig{
		Certificate:        cert,
		TokenStore:         backend,
		NodeStore:          backend,
		KeyringStoreBroker: backend,
		Logger:             logger.NewNop(),
	}
	router := gin.New()
	router.POST("/bootstrap/join", handler.Handle)
	router.POST("/bootstrap/auth", handler.Handle)

	ts := httptest.NewUnstartedServer(router)
	ts.TLS = &tls.Config{
		Certificates: []tls.Certificate{*cert},
	}
	ts.StartTLS()
	DeferCleanup(ts.Close)
	return &gatewayFixture{
		backend: backend,
		server:  ts,
		pin:     pkp.NewSha256(cert.Leaf),
	}
}

func freeAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	addr := l.Addr().String()
	Expect(l.Close()).To(Succeed())
	return addr
}

var _ = Describe("Agent", func() {
	It("should enroll, persist its keyring, and answer health probes", func() {
		gw := startGateway()
		bt, err := gw.backend.CreateToken(context.Background(), time.Hour, 1)
		Expect(err).NotTo(HaveOccurred())
		token, err := tokens.FromBootstrapToken(bt)
		Expect(err).NotTo(HaveOccurred())

		dir := GinkgoT().TempDir()
		listenAddr := freeAddr()
		conf := &v1beta1.AgentConfig{
			Spec: v1beta1.AgentConfigSpec{
				ListenAddress:    listenAddr,
				AdvertiseAddress: listenAddr,
				GatewayAddress:   gw.server.URL,
				IdentityFile:     filepath.Join(dir, "node-id"),
				KeyringFile:      filepath.Join(dir, "keyring"),
				Bootstrap: &v1beta1.BootstrapSpec{
					Token: token.EncodeHex(),
					Pins:  []string{gw.pin.Encode()},
				},
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)
		runErr := make(chan error, 1)
		go func() {
			runErr <- agent.New(conf).Run(ctx)
		}()

		var node *core.NodeRecord
		Eventually(func() error {
			nodes, err := gw.backend.ListNodes(context.Background())
			if err != nil || len(nodes) != 1 {
				return context.DeadlineExceeded
			}
			node = nodes[0]
			return nil
		}).Should(Succeed())
		Expect(node.Status).To(Equal(core.NodeStatusPending))
		Expect(filepath.Join(dir, "keyring")).To(BeAnExistingFile())

		// The gateway's monitor can now reach the agent.
		monitor := health.NewMonitor(gw.backend, gw.backend,
			health.WithInterval(20*time.Millisecond),
			health.WithProbeTimeout(time.Second),
			health.WithLogger(logger.NewNop()),
		)
		Eventually(func() error {
			return monitor.Probe(context.Background(), node)
		}).Should(Succeed())

		cancel()
		Eventually(runErr).Should(Receive(BeNil()))
	})

	It("should reuse its keyring on restart without bootstrap credentials", func() {
		gw := startGateway()
		bt, err := gw.backend.CreateToken(context.Background(), time.Hour, 1)
		Expect(err).NotTo(HaveOccurred())
		token, err := tokens.FromBootstrapToken(bt)
		Expect(err).NotTo(HaveOccurred())

		dir := GinkgoT().TempDir()
		spec := v1beta1.AgentConfigSpec{
			ListenAddress:  freeAddr(),
			GatewayAddress: gw.server.URL,
			IdentityFile:   filepath.Join(dir, "node-id"),
			KeyringFile:    filepath.Join(dir, "keyring"),
			Bootstrap: &v1beta1.BootstrapSpec{
				Token: token.EncodeHex(),
				Pins:  []string{gw.pin.Encode()},
			},
		}

		ctx1, cancel1 := context.WithCancel(context.Background())
		done1 := make(chan error, 1)
		go func() {
			done1 <- agent.New(&v1beta1.AgentConfig{Spec: spec}).Run(ctx1)
		}()
		Eventually(func() bool {
			nodes, _ := gw.backend.ListNodes(context.Background())
			return len(nodes) == 1
		}).Should(BeTrue())
		cancel1()
		Eventually(done1).Should(Receive(BeNil()))

		// Second run: no bootstrap credentials, same keyring file.
		spec2 := spec
		spec2.Bootstrap = nil
		spec2.ListenAddress = freeAddr()
		ctx2, cancel2 := context.WithCancel(context.Background())
		DeferCleanup(cancel2)
		done2 := make(chan error, 1)
		go func() {
			done2 <- agent.New(&v1beta1.AgentConfig{Spec: spec2}).Run(ctx2)
		}()

		Consistently(done2, 100*time.Millisecond).ShouldNot(Receive())
		// Still only one node; no second enrollment happened.
		nodes, err := gw.backend.ListNodes(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(nodes[0].Status).To(Equal(core.NodeStatusPending))

		updated, err := gw.backend.GetToken(context.Background(), bt.Reference())
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Metadata.UsageCount).To(Equal(int64(1)))
	})

	It("should fail fast without keyring or bootstrap credentials", func() {
		dir := GinkgoT().TempDir()
		conf := &v1beta1.AgentConfig{
			Spec: v1beta1.AgentConfigSpec{
				ListenAddress: freeAddr(),
				IdentityFile:  filepath.Join(dir, "node-id"),
				KeyringFile:   filepath.Join(dir, "keyring"),
			},
		}
		err := agent.New(conf).Run(context.Background())
		Expect(err).To(MatchError(ContainSubstring("no bootstrap credentials")))
	})
})

package bootstrap_test

import (
	"context"
	"crypto/tls"
	"net"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/ident"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/storage/inmemory"
	"github.com/outpost-labs/bootplane/pkg/tokens"
	"github.com/outpost-labs/bootplane/pkg/util"
)

type testEnv struct {
	backend *inmemory.Backend
	cert    *tls.Certificate
	pins    []*pkp.PublicKeyPin
	server  *httptest.Server
}

func startTestGateway(wrapListener ...func(net.Listener) net.Listener) *testEnv {
	cert, err := util.NewSelfSignedCert("localhost")
	Expect(err).NotTo(HaveOccurred())
	pin := pkp.NewSha256(cert.Leaf)

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
	for _, wrap := range wrapListener {
		ts.Listener = wrap(ts.Listener)
	}
	ts.StartTLS()
	DeferCleanup(ts.Close)
	return &testEnv{
		backend: backend,
		cert:    cert,
		pins:    []*pkp.PublicKeyPin{pin},
		server:  ts,
	}
}

func (e *testEnv) newClient(token *tokens.Token) *bootstrap.ClientConfig {
	return &bootstrap.ClientConfig{
		Token:            token,
		Pins:             e.pins,
		Endpoint:         e.server.URL,
		Role:             core.NodeRoleWorker,
		AdvertiseAddress: "10.0.0.1:8080",
		Logger:           logger.NewNop(),
		MaxRetries:       2,
		RetryMinInterval: 10 * time.Millisecond,
		RetryMaxInterval: 50 * time.Millisecond,
	}
}

func storedToken(bt *core.BootstrapToken) *tokens.Token {
	token, err := tokens.FromBootstrapToken(bt)
	Expect(err).NotTo(HaveOccurred())
	return token
}

var _ = Describe("Bootstrap Server", func() {
	var env *testEnv
	BeforeEach(func() {
		env = startTestGateway()
	})

	When("an agent presents a valid token", func() {
		It("should register the node and exchange keys", func() {
			bt, err := env.backend.CreateToken(context.Background(), time.Hour, 1)
			Expect(err).NotTo(HaveOccurred())

			client := env.newClient(storedToken(bt))
			result, err := client.Bootstrap(context.Background(), ident.NewStaticProvider("node-1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Node.ID).To(Equal("node-1"))
			Expect(result.Node.Status).To(Equal(core.NodeStatusPending))
			Expect(result.Keyring.SharedKeys).NotTo(BeNil())
			Expect(result.Keyring.PKPKey.PinnedKeys).To(HaveLen(1))

			node, err := env.backend.GetNode(context.Background(), &core.Reference{ID: "node-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Role).To(Equal(core.NodeRoleWorker))
			Expect(node.AdvertiseAddress).To(Equal("10.0.0.1:8080"))
			Expect(node.JoinedAt).NotTo(BeZero())

			krStore, err := env.backend.KeyringStore(bootstrap.KeyringNamespace, node.Reference())
			Expect(err).NotTo(HaveOccurred())
			serverKr, err := krStore.Get(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(serverKr.SharedKeys.ClientKey).To(Equal(result.Keyring.SharedKeys.ClientKey))
			Expect(serverKr.SharedKeys.ServerKey).To(Equal(result.Keyring.SharedKeys.ServerKey))

			updated, err := env.backend.GetToken(context.Background(), bt.Reference())
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Metadata.UsageCount).To(Equal(int64(1)))
		})
	})

	When("an agent presents a token the gateway never issued", func() {
		It("should reject the enrollment without registering a node", func() {
			_, err := env.backend.CreateToken(context.Background(), time.Hour, 1)
			Expect(err).NotTo(HaveOccurred())

			client := env.newClient(tokens.NewToken())
			_, err = client.Bootstrap(context.Background(), ident.NewStaticProvider("node-1"))
			Expect(err).To(MatchError(bootstrap.ErrTokenInvalid))

			nodes, err := env.backend.ListNodes(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(BeEmpty())
		})
	})

	When("an agent presents a revoked token", func() {
		It("should reject the enrollment", func() {
			bt, err := env.backend.CreateToken(context.Background(), time.Hour, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.backend.RevokeToken(context.Background(), bt.Reference())).To(Succeed())

			client := env.newClient(storedToken(bt))
			_, err = client.Bootstrap(context.Background(), ident.NewStaticProvider("node-1"))
			Expect(err).To(MatchError(bootstrap.ErrTokenInvalid))
		})
	})

	When("a node enrolls twice with the same identity", func() {
		It("should succeed without consuming a second token use", func() {
			bt, err := env.backend.CreateToken(context.Background(), time.Hour, 5)
			Expect(err).NotTo(HaveOccurred())
			token := storedToken(bt)

			first, err := env.newClient(token).Bootstrap(context.Background(), ident.NewStaticProvider("node-1"))
			Expect(err).NotTo(HaveOccurred())
			second, err := env.newClient(token).Bootstrap(context.Background(), ident.NewStaticProvider("node-1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Node.ID).To(Equal(first.Node.ID))

			updated, err := env.backend.GetToken(context.Background(), bt.Reference())
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Metadata.UsageCount).To(Equal(int64(1)))

			nodes, err := env.backend.ListNodes(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
		})
	})

	When("more agents race for a token than it has uses", func() {
		It("should admit exactly as many nodes as the token allows", func() {
			bt, err := env.backend.CreateToken(context.Background(), time.Hour, 3)
			Expect(err).NotTo(HaveOccurred())
			token := storedToken(bt)

			var successes, rejections int64
			var wg sync.WaitGroup
			for i := 0; i < 7; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					id := ident.NewStaticProvider(uniqueNodeID(i))
					_, err := env.newClient(token).Bootstrap(context.Background(), id)
					if err == nil {
						atomic.AddInt64(&successes, 1)
					} else {
						Expect(err).To(MatchError(bootstrap.ErrTokenInvalid))
						atomic.AddInt64(&rejections, 1)
					}
				}(i)
			}
			wg.Wait()

			Expect(successes).To(Equal(int64(3)))
			Expect(rejections).To(Equal(int64(4)))

			nodes, err := env.backend.ListNodes(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(3))

			_, err = env.backend.RedeemToken(context.Background(), bt.Reference())
			Expect(err).To(MatchError(storage.ErrTokenInvalid))
		})
	})

	When("the auth request is malformed", func() {
		It("should reject invalid client IDs", func() {
			bt, err := env.backend.CreateToken(context.Background(), time.Hour, 1)
			Expect(err).NotTo(HaveOccurred())

			client := env.newClient(storedToken(bt))
			_, err = client.Bootstrap(context.Background(), ident.NewStaticProvider("!!bad id!!"))
			Expect(err).To(MatchError(bootstrap.ErrBootstrapFailed))

			// A rejected request must not consume a token use.
			updated, err := env.backend.GetToken(context.Background(), bt.Reference())
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Metadata.UsageCount).To(Equal(int64(0)))
		})
	})
})

func uniqueNodeID(i int) string {
	return string(rune('a'+i)) + "-node"
}

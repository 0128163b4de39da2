// Package agent implements the node side: enroll with the gateway on
// first start, persist the keyring, and answer MAC-authenticated health
// probes from then on.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/outpost-labs/bootplane/pkg/b2mac"
	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/config/v1beta1"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/ident"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/storage/fs"
	"github.com/outpost-labs/bootplane/pkg/tokens"
)

type Agent struct {
	conf *v1beta1.AgentConfigSpec
	lg   *zap.SugaredLogger

	identity     ident.Provider
	keyringStore storage.KeyringStore
}

type AgentOptions struct {
	identity     ident.Provider
	keyringStore storage.KeyringStore
}

type AgentOption func(*AgentOptions)

func (o *AgentOptions) apply(opts ...AgentOption) {
	for _, op := range opts {
		op(o)
	}
}

// WithIdentityProvider overrides the default file-backed identity.
func WithIdentityProvider(provider ident.Provider) AgentOption {
	return func(o *AgentOptions) {
		o.identity = provider
	}
}

// WithKeyringStore overrides the default file-backed keyring store.
func WithKeyringStore(store storage.KeyringStore) AgentOption {
	return func(o *AgentOptions) {
		o.keyringStore = store
	}
}

func New(conf *v1beta1.AgentConfig, opts ...AgentOption) *Agent {
	options := AgentOptions{}
	options.apply(opts...)
	spec := conf.Spec
	spec.SetDefaults()

	identity := options.identity
	if identity == nil {
		identity = ident.NewHostPathProvider(spec.IdentityFile)
	}
	keyringStore := options.keyringStore
	if keyringStore == nil {
		keyringStore = fs.NewKeyringStore(spec.KeyringFile)
	}
	return &Agent{
		conf:         &spec,
		lg:           logger.New().Named("agent"),
		identity:     identity,
		keyringStore: keyringStore,
	}
}

// Run enrolls the node if it has no keyring yet, then serves the health
// endpoint until the context is canceled.
func (a *Agent) Run(ctx context.Context) error {
	kr, err := a.loadOrBootstrapKeyring(ctx)
	if err != nil {
		return err
	}
	if kr.SharedKeys == nil {
		return keyring.ErrNoSharedKeys
	}
	return a.serveHealth(ctx, kr)
}

func (a *Agent) loadOrBootstrapKeyring(ctx context.Context) (*keyring.Keyring, error) {
	kr, err := a.keyringStore.Get(ctx)
	if err == nil {
		a.lg.Info("loaded existing keyring")
		return kr, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load keyring: %w", err)
	}

	if a.conf.Bootstrap == nil {
		return nil, errors.New("no keyring found and no bootstrap credentials configured")
	}
	a.lg.With("gateway", a.conf.GatewayAddress).Info("no keyring found, enrolling")
	token, err := tokens.ParseHex(a.conf.Bootstrap.Token)
	if err != nil {
		return nil, fmt.Errorf("invalid bootstrap token: %w", err)
	}
	pins, err := pkp.DecodePins(a.conf.Bootstrap.Pins)
	if err != nil {
		return nil, fmt.Errorf("invalid trust anchor pins: %w", err)
	}
	client := &bootstrap.ClientConfig{
		Token:            token,
		Pins:             pins,
		Endpoint:         a.conf.GatewayAddress,
		Role:             core.NodeRole(a.conf.Role),
		AdvertiseAddress: a.conf.AdvertiseAddress,
		Logger:           a.lg.Named("bootstrap"),
	}
	result, err := client.Bootstrap(ctx, a.identity)
	if err != nil {
		return nil, err
	}
	if err := a.keyringStore.Put(ctx, result.Keyring); err != nil {
		return nil, fmt.Errorf("failed to persist keyring: %w", err)
	}
	a.lg.With(
		"node", result.Node.ID,
		"role", result.Node.Role,
	).Info("enrolled with gateway")
	return result.Keyring, nil
}

func (a *Agent) serveHealth(ctx context.Context, kr *keyring.Keyring) error {
	id, err := a.identity.UniqueIdentifier(ctx)
	if err != nil {
		return err
	}
	router := gin.New()
	router.Use(logger.GinLogger(a.lg), gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		headerID, nonce, mac, err := b2mac.DecodeAuthHeader(c.GetHeader("Authorization"))
		if err != nil || headerID != id {
			c.Status(http.StatusUnauthorized)
			return
		}
		if err := b2mac.Verify(mac, []byte(headerID), nonce, nil, kr.SharedKeys.ServerKey); err != nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	listener, err := net.Listen("tcp", a.conf.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to start health listener: %w", err)
	}
	a.lg.With("address", listener.Addr().String()).Info("agent started")
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		errC <- server.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return nil
	case err := <-errC:
		return err
	}
}

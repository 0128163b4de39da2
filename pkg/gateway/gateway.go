// Package gateway assembles the issuing side of the system: the TLS
// bootstrap listener, the management API, the health monitor, and the
// metrics endpoint.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/config/v1beta1"
	"github.com/outpost-labs/bootplane/pkg/health"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/management"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/storage/inmemory"
	"github.com/outpost-labs/bootplane/pkg/util"
)

type Gateway struct {
	conf        *v1beta1.GatewayConfigSpec
	lg          *zap.SugaredLogger
	backend     storage.Backend
	certificate *tls.Certificate
	mgmtServer  *management.Server
	registry    *prometheus.Registry
}

type GatewayOptions struct {
	backend storage.Backend
}

type GatewayOption func(*GatewayOptions)

func (o *GatewayOptions) apply(opts ...GatewayOption) {
	for _, op := range opts {
		op(o)
	}
}

// WithBackend overrides the default in-memory storage backend.
func WithBackend(backend storage.Backend) GatewayOption {
	return func(o *GatewayOptions) {
		o.backend = backend
	}
}

func New(conf *v1beta1.GatewayConfig, opts ...GatewayOption) (*Gateway, error) {
	options := GatewayOptions{}
	options.apply(opts...)
	spec := conf.Spec
	spec.SetDefaults()

	lg := logger.New().Named("gateway")

	backend := options.backend
	if backend == nil {
		backend = inmemory.NewBackend()
	}

	var certificate *tls.Certificate
	var err error
	if spec.Certs.ServingCert != "" {
		certificate, err = util.LoadServingCertBundle(spec.Certs.ServingCert, spec.Certs.ServingKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load serving certs: %w", err)
		}
		lg.With("cert", spec.Certs.ServingCert).Info("loaded serving certificate")
	} else {
		certificate, err = util.NewSelfSignedCert(spec.Hostname)
		if err != nil {
			return nil, fmt.Errorf("failed to generate serving cert: %w", err)
		}
		lg.With("hostname", spec.Hostname).Info("generated self-signed serving certificate")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgmtServer := management.NewServer(backend, certificate,
		management.WithLogger(lg.Named("mgmt")))

	return &Gateway{
		conf:        &spec,
		lg:          lg,
		backend:     backend,
		certificate: certificate,
		mgmtServer:  mgmtServer,
		registry:    registry,
	}, nil
}

// Certificate returns the serving certificate, whose fingerprint is the
// cluster's trust anchor.
func (g *Gateway) Certificate() *tls.Certificate {
	return g.certificate
}

func (g *Gateway) Backend() storage.Backend {
	return g.backend
}

func (g *Gateway) ManagementServer() *management.Server {
	return g.mgmtServer
}

// Run starts all listeners and blocks until the context is canceled or
// one of them fails.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errC := make(chan error, 4)

	bootstrapListener, err := tls.Listen("tcp", g.conf.ListenAddress, &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*g.certificate},
	})
	if err != nil {
		return fmt.Errorf("failed to start bootstrap listener: %w", err)
	}
	defer bootstrapListener.Close()
	go func() {
		errC <- g.serveBootstrap(ctx, bootstrapListener)
	}()

	go func() {
		errC <- g.mgmtServer.ListenAndServe(ctx, g.conf.ManagementListenAddress)
	}()

	go func() {
		errC <- g.serveMetrics(ctx)
	}()

	interval, err := time.ParseDuration(g.conf.HealthCheck.Interval)
	if err != nil {
		return fmt.Errorf("invalid health check interval: %w", err)
	}
	timeout, err := time.ParseDuration(g.conf.HealthCheck.Timeout)
	if err != nil {
		return fmt.Errorf("invalid health check timeout: %w", err)
	}
	if interval > 0 {
		monitor := health.NewMonitor(g.backend, g.backend,
			health.WithInterval(interval),
			health.WithProbeTimeout(timeout),
			health.WithLogger(g.lg.Named("health")),
			health.WithMetricsRegisterer(g.registry),
		)
		go monitor.Run(ctx)
	}

	// The bootstrap listener is up; the registry can now be queried.
	g.mgmtServer.SetReady(true)
	g.lg.With(
		"bootstrap", bootstrapListener.Addr().String(),
		"management", g.conf.ManagementListenAddress,
		"metrics", g.conf.MetricsListenAddress,
	).Info("gateway started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errC:
		if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (g *Gateway) serveBootstrap(ctx context.Context, listener net.Listener) error {
	router := gin.New()
	router.Use(logger.GinLogger(g.lg.Named("bootstrap")), gin.Recovery())
	if err := router.SetTrustedProxies(g.conf.TrustedProxies); err != nil {
		return err
	}
	handler := bootstrap.ServerConfig{
		Certificate:        g.certificate,
		TokenStore:         g.backend,
		NodeStore:          g.backend,
		KeyringStoreBroker: g.backend,
		Logger:             g.lg.Named("bootstrap"),
	}
	router.POST("/bootstrap/join", handler.Handle)
	router.POST("/bootstrap/auth", handler.Handle)

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveWithContext(ctx, server, listener)
}

func (g *Gateway) serveMetrics(ctx context.Context) error {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})))
	pprof.Register(router)

	listener, err := net.Listen("tcp", g.conf.MetricsListenAddress)
	if err != nil {
		return fmt.Errorf("failed to start metrics listener: %w", err)
	}
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveWithContext(ctx, server, listener)
}

func serveWithContext(ctx context.Context, server *http.Server, listener net.Listener) error {
	errC := make(chan error, 1)
	go func() {
		errC <- server.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errC:
		return err
	}
}

package management

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/util"
)

// Server exposes the operator-facing management API. It is plaintext
// HTTP and is expected to be bound to localhost or otherwise firewalled;
// authenticating operators is out of scope here.
type Server struct {
	ServerOptions
	backend     storage.Backend
	certificate *tls.Certificate
	ready       atomic.Bool
}

type ServerOptions struct {
	lg *zap.SugaredLogger
}

type ServerOption func(*ServerOptions)

func (o *ServerOptions) apply(opts ...ServerOption) {
	for _, op := range opts {
		op(o)
	}
}

func WithLogger(lg *zap.SugaredLogger) ServerOption {
	return func(o *ServerOptions) {
		o.lg = lg
	}
}

func NewServer(backend storage.Backend, certificate *tls.Certificate, opts ...ServerOption) *Server {
	options := ServerOptions{
		lg: logger.New().Named("mgmt"),
	}
	options.apply(opts...)
	return &Server{
		ServerOptions: options,
		backend:       backend,
		certificate:   certificate,
	}
}

// SetReady flips the readiness gate. Until it is set, every endpoint
// responds 503 so callers cannot observe a half-started gateway.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(logger.GinLogger(s.lg), gin.Recovery())

	mgmt := router.Group("/management", s.readyCheck)
	mgmt.POST("/tokens", s.handleCreateToken)
	mgmt.GET("/tokens", s.handleListTokens)
	mgmt.DELETE("/tokens/:id", s.handleRevokeToken)
	mgmt.GET("/nodes", s.handleListNodes)
	mgmt.GET("/nodes/:id", s.handleGetNode)
	mgmt.DELETE("/nodes/:id", s.handleDeleteNode)
	mgmt.GET("/certs", s.handleCertInfo)
	mgmt.GET("/status", s.handleStatus)
	return router
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		errC <- server.ListenAndServe()
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

func (s *Server) readyCheck(c *gin.Context) {
	// The status endpoint reports readiness instead of hiding behind it.
	if c.Request.URL.Path == "/management/status" {
		return
	}
	if !s.ready.Load() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
	}
}

func (s *Server) handleCreateToken(c *gin.Context) {
	req := CreateTokenRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	ttl, _ := time.ParseDuration(req.TTL)
	token, err := s.backend.CreateToken(c.Request.Context(), ttl, req.MaxUsages,
		storage.WithLabels(req.Labels))
	if err != nil {
		s.lg.With(zap.Error(err)).Error("failed to create token")
		c.Status(http.StatusInternalServerError)
		return
	}
	// The only response that ever carries the secret.
	c.JSON(http.StatusOK, token)
}

func (s *Server) handleListTokens(c *gin.Context) {
	tokenList, err := s.backend.ListTokens(c.Request.Context())
	if err != nil {
		s.lg.With(zap.Error(err)).Error("failed to list tokens")
		c.Status(http.StatusInternalServerError)
		return
	}
	items := lo.Map(tokenList, util.Indexed((*core.BootstrapToken).Redacted))
	c.JSON(http.StatusOK, TokenList{Items: items})
}

func (s *Server) handleRevokeToken(c *gin.Context) {
	ref := &core.Reference{ID: c.Param("id")}
	err := s.backend.RevokeToken(c.Request.Context(), ref)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrTokenInvalid):
		c.Status(http.StatusNotFound)
	default:
		s.lg.With(zap.Error(err)).Error("failed to revoke token")
		c.Status(http.StatusInternalServerError)
	}
}

func (s *Server) handleListNodes(c *gin.Context) {
	nodes, err := s.backend.ListNodes(c.Request.Context())
	if err != nil {
		s.lg.With(zap.Error(err)).Error("failed to list nodes")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, NodeList{Items: nodes})
}

func (s *Server) handleGetNode(c *gin.Context) {
	node, err := s.backend.GetNode(c.Request.Context(), &core.Reference{ID: c.Param("id")})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, node)
	case errors.Is(err, storage.ErrNotFound):
		c.Status(http.StatusNotFound)
	default:
		s.lg.With(zap.Error(err)).Error("failed to get node")
		c.Status(http.StatusInternalServerError)
	}
}

func (s *Server) handleDeleteNode(c *gin.Context) {
	ref := &core.Reference{ID: c.Param("id")}
	err := s.backend.DeleteNode(c.Request.Context(), ref)
	switch {
	case err == nil:
		if krStore, err := s.backend.KeyringStore(bootstrap.KeyringNamespace, ref); err == nil {
			if err := krStore.Delete(c.Request.Context()); err != nil &&
				!errors.Is(err, storage.ErrNotFound) {
				s.lg.With(zap.Error(err)).Warn("failed to delete keyring")
			}
		}
		c.Status(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound):
		c.Status(http.StatusNotFound)
	default:
		s.lg.With(zap.Error(err)).Error("failed to delete node")
		c.Status(http.StatusInternalServerError)
	}
}

func (s *Server) handleCertInfo(c *gin.Context) {
	resp := CertsResponse{}
	for _, der := range s.certificate.Certificate {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			s.lg.With(zap.Error(err)).Error("failed to parse serving certificate")
			c.Status(http.StatusInternalServerError)
			return
		}
		resp.Chain = append(resp.Chain, CertInfo{
			Issuer:      cert.Issuer.String(),
			Subject:     cert.Subject.String(),
			IsCA:        cert.IsCA,
			NotBefore:   cert.NotBefore,
			NotAfter:    cert.NotAfter,
			Fingerprint: pkp.NewSha256(cert).Encode(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Ready:      s.ready.Load(),
		NodeCounts: map[core.NodeStatus]int64{},
	}
	if resp.Ready {
		nodes, err := s.backend.ListNodes(c.Request.Context())
		if err != nil {
			s.lg.With(zap.Error(err)).Error("failed to list nodes")
			c.Status(http.StatusInternalServerError)
			return
		}
		for _, node := range nodes {
			resp.NodeCounts[node.Status]++
		}
		tokenList, err := s.backend.ListTokens(c.Request.Context())
		if err != nil {
			s.lg.With(zap.Error(err)).Error("failed to list tokens")
			c.Status(http.StatusInternalServerError)
			return
		}
		resp.TokenCount = int64(len(tokenList))
	}
	c.JSON(http.StatusOK, resp)
}

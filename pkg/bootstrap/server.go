package bootstrap

import (
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jws"
	"go.uber.org/zap"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/ecdh"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/storage"
	"github.com/outpost-labs/bootplane/pkg/tokens"
)

// KeyringNamespace is the keyring store namespace holding per-node
// shared keys on the gateway side.
const KeyringNamespace = "gateway"

// ServerConfig serves the two bootstrap endpoints. The certificate's
// private key must be ed25519; it both terminates TLS and signs token
// JWS envelopes, which is what ties the trust anchor to the token
// signatures.
type ServerConfig struct {
	Certificate        *tls.Certificate
	TokenStore         storage.TokenStore
	NodeStore          storage.NodeStore
	KeyringStoreBroker storage.KeyringStoreBroker
	Logger             *zap.SugaredLogger
}

func (h ServerConfig) Handle(c *gin.Context) {
	switch c.Request.URL.Path {
	case "/bootstrap/join":
		switch c.Request.Method {
		case http.MethodPost:
			h.handleBootstrapJoin(c)
		default:
			c.Status(http.StatusMethodNotAllowed)
		}
	case "/bootstrap/auth":
		switch c.Request.Method {
		case http.MethodPost:
			h.handleBootstrapAuth(c)
		default:
			c.Status(http.StatusMethodNotAllowed)
		}
	default:
		c.Status(http.StatusNotFound)
	}
}

func (h ServerConfig) handleBootstrapJoin(c *gin.Context) {
	lg := h.Logger
	signatures := map[string][]byte{}
	tokenList, err := h.TokenStore.ListTokens(c.Request.Context())
	if err != nil {
		lg.With(zap.Error(err)).Error("failed to list tokens")
		c.Status(http.StatusInternalServerError)
		return
	}
	now := time.Now()
	for _, bt := range tokenList {
		if !bt.Redeemable(now) {
			continue
		}
		token, err := tokens.FromBootstrapToken(bt)
		if err != nil {
			lg.With(zap.Error(err), "token", bt.TokenID).Error("stored token is corrupted")
			continue
		}
		sig, err := token.SignDetached(h.Certificate.PrivateKey)
		if err != nil {
			lg.With(zap.Error(err)).Error("failed to sign token")
			c.Status(http.StatusInternalServerError)
			return
		}
		signatures[token.HexID()] = sig
	}
	if len(signatures) == 0 {
		// No redeemable tokens; nothing to offer.
		c.Status(http.StatusMethodNotAllowed)
		return
	}
	c.JSON(http.StatusOK, JoinResponse{
		Signatures: signatures,
	})
}

func (h ServerConfig) handleBootstrapAuth(c *gin.Context) {
	lg := h.Logger
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))

	privKey, ok := h.Certificate.PrivateKey.(ed25519.PrivateKey)
	if !ok {
		lg.Error("serving key is not ed25519")
		c.Status(http.StatusInternalServerError)
		return
	}
	// The bearer is a completed JWS: only a client that knows the full
	// token can reconstruct the payload the gateway signed.
	payload, err := jws.Verify([]byte(bearer), jwa.EdDSA, privKey.Public())
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}
	token, err := tokens.ParseJSON(payload)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}
	storedToken, err := h.TokenStore.GetToken(c.Request.Context(), token.Reference())
	if err != nil || !storedToken.Redeemable(time.Now()) {
		// Expired, exhausted, or revoked since it was signed.
		c.Status(http.StatusUnauthorized)
		return
	}

	authReq := AuthRequest{}
	if err := c.ShouldBindJSON(&authReq); err != nil {
		c.String(http.StatusBadRequest, "malformed request body")
		return
	}
	if err := authReq.Validate(); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	nodeRef := &core.Reference{ID: authReq.ClientID}
	if existing, err := h.NodeStore.GetNode(c.Request.Context(), nodeRef); err == nil {
		// Re-enrollment of a known node is idempotent and does not
		// consume a token use. Fresh shared keys are exchanged so the
		// node is never left without a usable keyring.
		h.finishExchange(c, authReq, existing, false)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		lg.With(zap.Error(err)).Error("failed to look up node")
		c.Status(http.StatusInternalServerError)
		return
	}

	if _, err := h.TokenStore.RedeemToken(c.Request.Context(), token.Reference()); err != nil {
		if errors.Is(err, storage.ErrTokenInvalid) || errors.Is(err, storage.ErrNotFound) {
			c.Status(http.StatusUnauthorized)
			return
		}
		lg.With(zap.Error(err)).Error("failed to redeem token")
		c.Status(http.StatusInternalServerError)
		return
	}

	node := &core.NodeRecord{
		ID:               authReq.ClientID,
		Role:             authReq.Role,
		AdvertiseAddress: authReq.AdvertiseAddress,
		Labels:           authReq.Labels,
		JoinedAt:         time.Now(),
		Status:           core.NodeStatusPending,
	}
	if err := h.NodeStore.PutNode(c.Request.Context(), node); err != nil {
		lg.With(zap.Error(err)).Error("failed to register node")
		c.Status(http.StatusInternalServerError)
		return
	}
	h.finishExchange(c, authReq, node, true)
}

// finishExchange performs the ECDH exchange, persists the resulting
// shared keys, and responds. If the keyring cannot be stored, a node
// record created by this request is rolled back so no registry entry
// exists without keys.
func (h ServerConfig) finishExchange(c *gin.Context, authReq AuthRequest, node *core.NodeRecord, fresh bool) {
	lg := h.Logger
	ekp, err := ecdh.NewEphemeralKeyPair()
	if err != nil {
		lg.With(zap.Error(err)).Error("failed to generate ephemeral keypair")
		c.Status(http.StatusInternalServerError)
		return
	}
	sharedSecret, err := ecdh.DeriveSharedSecret(ekp, ecdh.PeerPublicKey{
		PublicKey: authReq.ClientPubKey,
		PeerType:  ecdh.PeerTypeClient,
	})
	if err != nil {
		lg.With(zap.Error(err)).Error("failed to derive shared secret")
		c.Status(http.StatusInternalServerError)
		return
	}

	krStore, err := h.KeyringStoreBroker.KeyringStore(KeyringNamespace, node.Reference())
	if err != nil {
		lg.With(zap.Error(err)).Error("failed to open keyring store")
		c.Status(http.StatusInternalServerError)
		return
	}
	kr := keyring.New(keyring.NewSharedKeys(sharedSecret), nil)
	if existing, err := krStore.Get(c.Request.Context()); err == nil {
		kr = existing.Merge(kr)
	}
	if err := krStore.Put(c.Request.Context(), kr); err != nil {
		lg.With(zap.Error(err)).Error("failed to store keyring")
		if fresh {
			if delErr := h.NodeStore.DeleteNode(c.Request.Context(), node.Reference()); delErr != nil &&
				!errors.Is(delErr, storage.ErrNotFound) {
				lg.With(zap.Error(delErr)).Error("failed to roll back node record")
			}
		}
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		ServerPubKey: ekp.PublicKey,
		Node:         *node.DeepCopy(),
	})
}

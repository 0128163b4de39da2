package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/backoff/v2"
	"go.uber.org/zap"

	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/ecdh"
	"github.com/outpost-labs/bootplane/pkg/ident"
	"github.com/outpost-labs/bootplane/pkg/keyring"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/tokens"
)

// ClientConfig performs the agent side of the bootstrap handshake.
type ClientConfig struct {
	Token            *tokens.Token
	Pins             []*pkp.PublicKeyPin
	Endpoint         string
	Role             core.NodeRole
	AdvertiseAddress string
	Labels           map[string]string
	Logger           *zap.SugaredLogger

	// MaxRetries bounds reconnection attempts on transient network
	// failures. Trust anchor mismatches and token rejections are never
	// retried. Defaults to 5.
	MaxRetries int
	// RetryMinInterval is the initial backoff interval. Defaults to 500ms.
	RetryMinInterval time.Duration
	// RetryMaxInterval caps the backoff interval. Defaults to 5s.
	RetryMaxInterval time.Duration
	// Timeout applies to each individual request. Defaults to 10s.
	Timeout time.Duration
}

// Bootstrap runs the full join/auth handshake against the gateway and
// returns the node's registration and keyring. Transient network errors
// are retried with exponential backoff up to MaxRetries; a trust anchor
// mismatch or a rejected token fails immediately.
func (c *ClientConfig) Bootstrap(ctx context.Context, id ident.Provider) (*Result, error) {
	lg := c.Logger
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	if c.Token == nil {
		return nil, fmt.Errorf("%w: no token provided", ErrBootstrapFailed)
	}
	endpoint, httpClient, err := c.prepare()
	if err != nil {
		return nil, err
	}
	clientID, err := id.UniqueIdentifier(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve node identity: %s", ErrBootstrapFailed, err)
	}

	p := backoff.Exponential(
		backoff.WithMinInterval(c.retryMinInterval()),
		backoff.WithMaxInterval(c.retryMaxInterval()),
		backoff.WithMultiplier(2),
		backoff.WithJitterFactor(0.05),
		backoff.WithMaxRetries(c.maxRetries()),
	)
	var lastErr error
	b := p.Start(ctx)
	for backoff.Continue(b) {
		result, err := c.attempt(ctx, endpoint, httpClient, clientID)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		lg.With(zap.Error(err)).Warn("gateway unreachable, retrying")
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("%w: %s", ErrNetworkUnavailable, lastErr)
}

func (c *ClientConfig) prepare() (*url.URL, *http.Client, error) {
	endpoint, err := url.Parse(c.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
	}
	endpoint.Scheme = "https"
	tlsConfig, err := pkp.TLSConfig(c.Pins)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
		Timeout: c.timeout(),
	}
	return endpoint, httpClient, nil
}

func (c *ClientConfig) attempt(
	ctx context.Context,
	endpoint *url.URL,
	httpClient *http.Client,
	clientID string,
) (*Result, error) {
	jws, err := c.bootstrapJoin(ctx, endpoint, httpClient)
	if err != nil {
		return nil, err
	}
	return c.bootstrapAuth(ctx, endpoint, httpClient, clientID, jws)
}

// bootstrapJoin fetches the detached signatures the gateway is offering
// and selects the one matching our token.
func (c *ClientConfig) bootstrapJoin(
	ctx context.Context,
	endpoint *url.URL,
	httpClient *http.Client,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint.JoinPath("bootstrap", "join").String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusMethodNotAllowed:
		// The gateway has no redeemable tokens, so ours cannot be one
		// of them.
		return nil, ErrNoValidSignature
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s", ErrNotReady, resp.Status)
	default:
		return nil, fmt.Errorf("%w: unexpected join response: %s", ErrBootstrapFailed, resp.Status)
	}
	joinResp := JoinResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&joinResp); err != nil {
		return nil, fmt.Errorf("%w: malformed join response: %s", ErrBootstrapFailed, err)
	}
	sig, ok := joinResp.Signatures[c.Token.HexID()]
	if !ok {
		return nil, ErrNoValidSignature
	}
	return sig, nil
}

func (c *ClientConfig) bootstrapAuth(
	ctx context.Context,
	endpoint *url.URL,
	httpClient *http.Client,
	clientID string,
	detachedJWS []byte,
) (*Result, error) {
	completedJWS, err := c.Token.CompleteDetached(detachedJWS)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	ekp, err := ecdh.NewEphemeralKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	authReq := AuthRequest{
		ClientID:         clientID,
		ClientPubKey:     ekp.PublicKey,
		Role:             c.Role,
		AdvertiseAddress: c.AdvertiseAddress,
		Labels:           c.Labels,
	}
	body, err := json.Marshal(authReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint.JoinPath("bootstrap", "auth").String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(completedJWS))
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrTokenInvalid
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s", ErrNotReady, resp.Status)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: %s", ErrBootstrapFailed, resp.Status, string(msg))
	}
	authResp := AuthResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: malformed auth response: %s", ErrBootstrapFailed, err)
	}
	sharedSecret, err := ecdh.DeriveSharedSecret(ekp, ecdh.PeerPublicKey{
		PublicKey: authResp.ServerPubKey,
		PeerType:  ecdh.PeerTypeServer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBootstrapFailed, err)
	}
	return &Result{
		Node: authResp.Node,
		Keyring: keyring.New(
			keyring.NewSharedKeys(sharedSecret),
			keyring.NewPKPKey(c.Pins),
		),
	}, nil
}

// classifyTransportError separates pin mismatches, which are fatal, from
// everything else at the transport layer, which is transient.
func classifyTransportError(err error) error {
	if errors.Is(err, pkp.ErrPinMismatch) ||
		strings.Contains(err.Error(), pkp.ErrPinMismatch.Error()) {
		return fmt.Errorf("%w: %s", ErrTrustAnchorMismatch, err)
	}
	return fmt.Errorf("%w: %s", ErrNetworkUnavailable, err)
}

func retryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrNotReady)
}

func (c *ClientConfig) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 5
}

func (c *ClientConfig) retryMinInterval() time.Duration {
	if c.RetryMinInterval > 0 {
		return c.RetryMinInterval
	}
	return 500 * time.Millisecond
}

func (c *ClientConfig) retryMaxInterval() time.Duration {
	if c.RetryMaxInterval > 0 {
		return c.RetryMaxInterval
	}
	return 5 * time.Second
}

func (c *ClientConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}

package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/outpost-labs/bootplane/pkg/core"
)

// Client talks to the management API over HTTP.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
}

type ClientOptions struct {
	timeout time.Duration
}

type ClientOption func(*ClientOptions)

func (o *ClientOptions) apply(opts ...ClientOption) {
	for _, op := range opts {
		op(o)
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.timeout = timeout
	}
}

func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	options := ClientOptions{
		timeout: 10 * time.Second,
	}
	options.apply(opts...)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid management endpoint %q: %w", endpoint, err)
	}
	return &Client{
		endpoint: u,
		httpClient: &http.Client{
			Timeout: options.timeout,
		},
	}, nil
}

func (c *Client) CreateToken(ctx context.Context, req *CreateTokenRequest) (*core.BootstrapToken, error) {
	token := &core.BootstrapToken{}
	if err := c.do(ctx, http.MethodPost, []string{"management", "tokens"}, req, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (c *Client) ListTokens(ctx context.Context) ([]*core.BootstrapToken, error) {
	list := TokenList{}
	if err := c.do(ctx, http.MethodGet, []string{"management", "tokens"}, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *Client) RevokeToken(ctx context.Context, ref *core.Reference) error {
	return c.do(ctx, http.MethodDelete, []string{"management", "tokens", ref.ID}, nil, nil)
}

func (c *Client) ListNodes(ctx context.Context) ([]*core.NodeRecord, error) {
	list := NodeList{}
	if err := c.do(ctx, http.MethodGet, []string{"management", "nodes"}, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *Client) GetNode(ctx context.Context, ref *core.Reference) (*core.NodeRecord, error) {
	node := &core.NodeRecord{}
	if err := c.do(ctx, http.MethodGet, []string{"management", "nodes", ref.ID}, nil, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (c *Client) DeleteNode(ctx context.Context, ref *core.Reference) error {
	return c.do(ctx, http.MethodDelete, []string{"management", "nodes", ref.ID}, nil, nil)
}

func (c *Client) CertInfo(ctx context.Context) ([]CertInfo, error) {
	resp := CertsResponse{}
	if err := c.do(ctx, http.MethodGet, []string{"management", "certs"}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chain, nil
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{}
	if err := c.do(ctx, http.MethodGet, []string{"management", "status"}, nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, path []string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint.JoinPath(path...).String(), body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return ErrNotReady
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if respBody != nil {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

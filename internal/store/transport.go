package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/vault/api"
)

// MaxResponseSize caps the number of bytes read from a single response body.
const MaxResponseSize = 32000000

// DefaultTimeout applies to a whole request, connection included.
const DefaultTimeout = 15 * time.Second

var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)

// Request is one exchange with the Vault HTTP API. Path is relative to /v1/.
// List turns a GET into a list request.
type Request struct {
	Method string
	Path   string
	Body   []byte
	List   bool
}

// Response is whatever the server answered, whatever the status code.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode/100 == 2
}

// Transport performs HTTP exchanges. It returns an error only when no
// response was received at all; HTTP error statuses are reported through
// Response.StatusCode.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// VaultConfig configures a VaultTransport.
type VaultConfig struct {
	Address    string
	CACert     string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// VaultTransport sends requests through the official Vault API client, which
// owns TLS setup, connection reuse and retries. Only VaultConfig configures
// it: VAULT_* environment variables are ignored.
type VaultTransport struct {
	client *api.Client
}

// NewVaultTransport creates a transport talking to cfg.Address.
func NewVaultTransport(cfg VaultConfig) (*VaultTransport, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// api.DefaultConfig reads the environment, so the config is built by hand.
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Transport.(*http.Transport).TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	config := &api.Config{
		Address:      cfg.Address,
		HttpClient:   httpClient,
		Timeout:      timeout,
		MaxRetries:   cfg.MaxRetries,
		MinRetryWait: time.Second,
		MaxRetryWait: 1500 * time.Millisecond,
		Backoff:      retryablehttp.LinearJitterBackoff,
	}

	if cfg.CACert != "" {
		if err := config.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS with CA bundle %s: %w", cfg.CACert, err)
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	// NewClient still picks up VAULT_NAMESPACE and VAULT_TOKEN.
	client.ClearNamespace()
	client.SetToken(cfg.Token)

	return &VaultTransport{client: client}, nil
}

// Do implements Transport.
func (t *VaultTransport) Do(ctx context.Context, req Request) (*Response, error) {
	r := t.client.NewRequest(req.Method, "/v1/"+req.Path)
	if req.List {
		r.Method = http.MethodGet
		r.Params.Set("list", "true")
	}
	if req.Body != nil {
		r.BodyBytes = req.Body
	}

	//nolint:staticcheck // the raw response is needed for every status code
	resp, err := t.client.RawRequestWithContext(ctx, r)
	if resp == nil {
		if err == nil {
			err = errors.New("no response received")
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	if len(body) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Package store issues key operations against a resolved KV mount point and
// turns every response into keys or a diagnosable error.
package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/monitoring"
	"github.com/hengadev/vaultkeyring/internal/mount"
)

const (
	metadataSubpath = "metadata"
	dataSubpath     = "data"
	configSubpath   = "config"
)

// Client performs list, read, write and delete calls for keys stored under
// one mount point.
type Client struct {
	transport Transport
	point     mount.Point
	logger    monitoring.Logger
	metrics   monitoring.MetricsCollector
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger that receives failed operations.
func WithLogger(logger monitoring.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsCollector sets the collector for request timings.
func WithMetricsCollector(metrics monitoring.MetricsCollector) ClientOption {
	return func(c *Client) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// NewClient creates a Client for the keys under point.
func NewClient(transport Transport, point mount.Point, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		point:     point,
		logger:    monitoring.NopLogger{},
		metrics:   &monitoring.NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) MountPoint() mount.Point {
	return c.point
}

// ListKeys returns the signatures of every key under the mount point. A 404
// means nothing was stored yet and yields an empty list. Entries that do not
// decode as signatures are logged and skipped.
func (c *Client) ListKeys(ctx context.Context) ([]codec.Signature, error) {
	resp, err := c.do(ctx, OpList, Request{Method: http.MethodGet, Path: c.listPath(), List: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound || len(bytes.TrimSpace(resp.Body)) == 0 {
		return []codec.Signature{}, nil
	}

	list, err := codec.ParseKeysList(resp.Body)
	if err != nil {
		return nil, c.fail(OpList, &ResponseError{Op: OpList, Err: err})
	}
	for _, skipped := range list.Skipped {
		c.logger.Warn("Skipping key listed in Vault: %v", skipped)
	}
	return list.Signatures, nil
}

// ReadKey fetches the type and payload of one key.
func (c *Client) ReadKey(ctx context.Context, sig codec.Signature) (codec.KeyData, error) {
	resp, err := c.do(ctx, OpRead, Request{Method: http.MethodGet, Path: c.keyPath(sig)})
	if err != nil {
		return codec.KeyData{}, err
	}

	data, err := codec.ParseKeyData(resp.Body, c.point.Version)
	if err != nil {
		return codec.KeyData{}, c.fail(OpRead, &ResponseError{Op: OpRead, Err: err})
	}
	return data, nil
}

// WriteKey stores data under sig, replacing any previous value.
func (c *Client) WriteKey(ctx context.Context, sig codec.Signature, keyType string, data []byte) error {
	payload, err := codec.ComposeWritePayload(keyType, base64.StdEncoding.EncodeToString(data), c.point.Version)
	if err != nil {
		return c.fail(OpWrite, &ResponseError{Op: OpWrite, Err: err})
	}

	resp, err := c.do(ctx, OpWrite, Request{Method: http.MethodPost, Path: c.keyPath(sig), Body: payload})
	if err != nil {
		return err
	}
	return c.checkReportedErrors(OpWrite, resp)
}

// DeleteKey removes sig from the mount point.
func (c *Client) DeleteKey(ctx context.Context, sig codec.Signature) error {
	resp, err := c.do(ctx, OpDelete, Request{Method: http.MethodDelete, Path: c.keyPath(sig)})
	if err != nil {
		return err
	}
	return c.checkReportedErrors(OpDelete, resp)
}

// do sends req and sorts out every failure that does not depend on the
// operation: transport errors and non-2xx statuses. A 404 on a list is
// handed back to the caller.
func (c *Client) do(ctx context.Context, op Operation, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.transport.Do(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		c.recordRequest(op, "transport_error", elapsed)
		return nil, c.fail(op, &TransportError{Op: op, Err: err})
	}
	if resp.IsSuccess() || (op == OpList && resp.StatusCode == http.StatusNotFound) {
		c.recordRequest(op, "success", elapsed)
		c.logger.Debug("Vault %s %s answered %d in %s", req.Method, req.Path, resp.StatusCode, elapsed)
		return resp, nil
	}

	c.recordRequest(op, "remote_error", elapsed)
	return nil, c.fail(op, c.remoteError(op, resp))
}

// checkReportedErrors fails a 2xx response whose body still carries an
// "errors" member, or whose body cannot be read for one.
func (c *Client) checkReportedErrors(op Operation, resp *Response) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	messages, err := codec.ParseErrorMessages(resp.Body)
	if err != nil {
		return c.fail(op, &ResponseError{Op: op, Err: err})
	}
	if len(messages) > 0 {
		return c.fail(op, newRemoteError(op, resp.StatusCode, messages))
	}
	return nil
}

func (c *Client) remoteError(op Operation, resp *Response) *RemoteError {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return newRemoteError(op, resp.StatusCode, nil)
	}
	messages, err := codec.ParseErrorMessages(resp.Body)
	if err != nil {
		c.logger.Debug("Error while parsing error messages: %v", err)
		return newRemoteError(op, resp.StatusCode, nil)
	}
	return newRemoteError(op, resp.StatusCode, messages)
}

func (c *Client) fail(op Operation, err error) error {
	c.logger.Error("%v", err)
	return err
}

func (c *Client) recordRequest(op Operation, outcome string, elapsed time.Duration) {
	c.metrics.RecordTiming(monitoring.MetricStoreRequest, elapsed, map[string]string{
		"op":      string(op),
		"outcome": outcome,
	})
}

// secretPath is the v2 <mount>/<subpath>[/<dir>] prefix, or the configured
// path as is for v1.
func (c *Client) secretPath(subpath string) string {
	if c.point.Version != codec.VersionV2 {
		return c.point.MountPointPath
	}
	path := c.point.MountPointPath + "/" + subpath
	if c.point.DirectoryPath != "" {
		path += "/" + c.point.DirectoryPath
	}
	return path
}

func (c *Client) listPath() string {
	return c.secretPath(metadataSubpath)
}

func (c *Client) keyPath(sig codec.Signature) string {
	return c.secretPath(dataSubpath) + "/" + codec.EncodeSignature(sig)
}

// ConfigProber reads the engine configuration of candidate mount points. It
// satisfies mount.Prober.
type ConfigProber struct {
	transport Transport
	logger    monitoring.Logger
}

// NewConfigProber creates a ConfigProber sending probes through transport.
func NewConfigProber(transport Transport, logger monitoring.Logger) *ConfigProber {
	if logger == nil {
		logger = monitoring.NopLogger{}
	}
	return &ConfigProber{transport: transport, logger: logger}
}

// ProbeConfig returns the body of GET <prefix>/config when the server
// answers with a 2xx status.
func (p *ConfigProber) ProbeConfig(ctx context.Context, prefix string) ([]byte, error) {
	resp, err := p.transport.Do(ctx, Request{Method: http.MethodGet, Path: prefix + "/" + configSubpath})
	if err != nil {
		return nil, &TransportError{Op: OpProbe, Err: err}
	}
	if !resp.IsSuccess() {
		remote := newRemoteError(OpProbe, resp.StatusCode, nil)
		if messages, err := codec.ParseErrorMessages(resp.Body); err == nil {
			remote = newRemoteError(OpProbe, resp.StatusCode, messages)
		}
		p.logger.Debug("Probe of %s failed: %v", prefix, remote)
		return nil, remote
	}
	return resp.Body, nil
}

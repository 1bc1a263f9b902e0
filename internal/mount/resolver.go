// Package mount detects which KV secrets engine version serves a configured
// path and splits that path into a mount point and a directory.
package mount

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/monitoring"
)

const pathDelimiter = "/"

var (
	ErrVersionMismatch = errors.New("auto-detected mount point version is not the same as specified in 'secret_mount_point_version'")
	ErrEmptyPath       = errors.New("mount point path is empty")
)

// Point is a resolved mount point. Version is never codec.VersionAuto.
type Point struct {
	Version        codec.Version
	MountPointPath string
	DirectoryPath  string
}

func (p Point) String() string {
	if p.DirectoryPath == "" {
		return fmt.Sprintf("%s (kv-v%s)", p.MountPointPath, p.Version)
	}
	return fmt.Sprintf("%s/%s (kv-v%s, mount point %s)", p.MountPointPath, p.DirectoryPath, p.Version, p.MountPointPath)
}

// Prober fetches the engine configuration of a candidate mount point, i.e.
// the body of GET <prefix>/config. Any error means the prefix is not a
// KV v2 mount point.
type Prober interface {
	ProbeConfig(ctx context.Context, prefix string) ([]byte, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, prefix string) ([]byte, error)

func (f ProberFunc) ProbeConfig(ctx context.Context, prefix string) ([]byte, error) {
	return f(ctx, prefix)
}

// Resolver walks the prefixes of a path looking for a KV v2 mount point.
type Resolver struct {
	prober  Prober
	logger  monitoring.Logger
	metrics monitoring.MetricsCollector
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger that receives probe outcomes.
func WithLogger(logger monitoring.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsCollector sets the collector for probe metrics.
func WithMetricsCollector(metrics monitoring.MetricsCollector) ResolverOption {
	return func(r *Resolver) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// NewResolver creates a Resolver asking prober for mount configurations.
func NewResolver(prober Prober, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		prober:  prober,
		logger:  monitoring.NopLogger{},
		metrics: &monitoring.NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is a shorthand for NewResolver(prober).Resolve(ctx, path, declared).
func Resolve(ctx context.Context, prober Prober, path string, declared codec.Version) (Point, error) {
	return NewResolver(prober).Resolve(ctx, path, declared)
}

// Resolve determines the engine version serving path.
//
// A declared V1 is trusted without probing. Otherwise every prefix of path is
// probed from the shortest to the longest and the first one answering with a
// valid engine configuration becomes the v2 mount point; the remainder of path
// is the directory. When nothing matches, an Auto declaration falls back to
// V1 on the full path and a V2 declaration fails with ErrVersionMismatch.
func (r *Resolver) Resolve(ctx context.Context, path string, declared codec.Version) (Point, error) {
	if path == "" {
		return Point{}, ErrEmptyPath
	}

	if declared == codec.VersionV1 {
		return Point{Version: codec.VersionV1, MountPointPath: path}, nil
	}

	for _, prefix := range prefixes(path) {
		if err := ctx.Err(); err != nil {
			return Point{}, err
		}
		if r.isKVv2(ctx, prefix) {
			return Point{
				Version:        codec.VersionV2,
				MountPointPath: prefix,
				DirectoryPath:  strings.TrimPrefix(strings.TrimPrefix(path, prefix), pathDelimiter),
			}, nil
		}
	}

	if declared == codec.VersionV2 {
		r.logger.Error("%s", ErrVersionMismatch.Error())
		return Point{}, fmt.Errorf("%w: no kv-v2 secret engine found along %q", ErrVersionMismatch, path)
	}
	return Point{Version: codec.VersionV1, MountPointPath: path}, nil
}

func (r *Resolver) isKVv2(ctx context.Context, prefix string) bool {
	body, err := r.prober.ProbeConfig(ctx, prefix)
	if err != nil {
		r.metrics.IncrementCounter(monitoring.MetricMountProbe, map[string]string{"result": "skipped"})
		r.logger.Info("Probing %s for being a mount point unsuccessful - skipped.", prefix)
		return false
	}
	if _, err := codec.ParseMountPointConfig(body); err != nil {
		r.metrics.IncrementCounter(monitoring.MetricMountProbe, map[string]string{"result": "unexpected_format"})
		r.logger.Warn("Probing %s for being a mount point successful but response has unexpected format - skipped: %v", prefix, err)
		return false
	}
	r.metrics.IncrementCounter(monitoring.MetricMountProbe, map[string]string{"result": "kv_v2"})
	r.logger.Info("Probing %s for being a mount point successful - identified kv-v2 secret engine.", prefix)
	return true
}

// prefixes lists every slash-delimited prefix of path, shortest first, ending
// with path itself.
func prefixes(path string) []string {
	var out []string
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return append(out, path)
}

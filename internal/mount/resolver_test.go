package mount

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/monitoring"
)

const validConfig = `{"data":{"max_versions":0,"cas_required":false,"delete_version_after":"0s"}}`

// fakeProber answers from a fixed table and records every probed prefix.
type fakeProber struct {
	responses map[string]string
	probed    []string
}

func (f *fakeProber) ProbeConfig(ctx context.Context, prefix string) ([]byte, error) {
	f.probed = append(f.probed, prefix)
	body, ok := f.responses[prefix]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return []byte(body), nil
}

func TestResolve_StopsAtShortestMatch(t *testing.T) {
	prober := &fakeProber{responses: map[string]string{
		"secret":     validConfig,
		"secret/sub": validConfig,
	}}

	point, err := Resolve(context.Background(), prober, "secret/sub/dir", codec.VersionAuto)
	require.NoError(t, err)
	assert.Equal(t, Point{Version: codec.VersionV2, MountPointPath: "secret", DirectoryPath: "sub/dir"}, point)
	assert.Equal(t, []string{"secret"}, prober.probed)
}

func TestResolve_MatchDeeperInPath(t *testing.T) {
	prober := &fakeProber{responses: map[string]string{
		"team/kv": validConfig,
	}}

	point, err := Resolve(context.Background(), prober, "team/kv/mysql/keys", codec.VersionV2)
	require.NoError(t, err)
	assert.Equal(t, Point{Version: codec.VersionV2, MountPointPath: "team/kv", DirectoryPath: "mysql/keys"}, point)
	assert.Equal(t, []string{"team", "team/kv"}, prober.probed)
}

func TestResolve_FullPathIsMountPoint(t *testing.T) {
	prober := &fakeProber{responses: map[string]string{"kv": validConfig}}

	point, err := Resolve(context.Background(), prober, "kv", codec.VersionAuto)
	require.NoError(t, err)
	assert.Equal(t, Point{Version: codec.VersionV2, MountPointPath: "kv"}, point)
}

func TestResolve_AutoFallsBackToV1(t *testing.T) {
	prober := &fakeProber{responses: map[string]string{
		"secret": `{"errors":["no handler for route"]}`,
	}}

	point, err := Resolve(context.Background(), prober, "secret/keyring", codec.VersionAuto)
	require.NoError(t, err)
	assert.Equal(t, Point{Version: codec.VersionV1, MountPointPath: "secret/keyring"}, point)
	assert.Equal(t, []string{"secret", "secret/keyring"}, prober.probed)
}

func TestResolve_DeclaredV1SkipsProbing(t *testing.T) {
	prober := &fakeProber{responses: map[string]string{"secret": validConfig}}

	point, err := Resolve(context.Background(), prober, "secret/keyring", codec.VersionV1)
	require.NoError(t, err)
	assert.Equal(t, Point{Version: codec.VersionV1, MountPointPath: "secret/keyring"}, point)
	assert.Empty(t, prober.probed)
}

func TestResolve_DeclaredV2WithoutMatchFails(t *testing.T) {
	prober := &fakeProber{responses: map[string]string{}}

	_, err := Resolve(context.Background(), prober, "secret/keyring", codec.VersionV2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestResolve_EmptyPath(t *testing.T) {
	_, err := Resolve(context.Background(), &fakeProber{}, "", codec.VersionAuto)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{responses: map[string]string{"secret": validConfig}}
	_, err := Resolve(ctx, prober, "secret", codec.VersionAuto)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, prober.probed)
}

func TestResolver_RecordsProbeOutcomes(t *testing.T) {
	metrics := monitoring.NewInMemoryMetricsCollector()
	prober := ProberFunc(func(ctx context.Context, prefix string) ([]byte, error) {
		switch prefix {
		case "a":
			return nil, errors.New("permission denied")
		case "a/b":
			return []byte(`{"data":{}}`), nil
		default:
			return []byte(validConfig), nil
		}
	})

	point, err := NewResolver(prober, WithMetricsCollector(metrics)).Resolve(context.Background(), "a/b/c/d", codec.VersionAuto)
	require.NoError(t, err)
	assert.Equal(t, Point{Version: codec.VersionV2, MountPointPath: "a/b/c", DirectoryPath: "d"}, point)

	assert.Equal(t, int64(1), metrics.GetCounter(monitoring.MetricMountProbe, map[string]string{"result": "skipped"}))
	assert.Equal(t, int64(1), metrics.GetCounter(monitoring.MetricMountProbe, map[string]string{"result": "unexpected_format"}))
	assert.Equal(t, int64(1), metrics.GetCounter(monitoring.MetricMountProbe, map[string]string{"result": "kv_v2"}))
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, []string{"a"}, prefixes("a"))
	assert.Equal(t, []string{"a", "a/b", "a/b/c"}, prefixes("a/b/c"))
}

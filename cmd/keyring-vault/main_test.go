package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hengadev/vaultkeyring"
	"github.com/hengadev/vaultkeyring/internal/vaulttest"
)

const key1Signature = "NF9rZXkxNF9yb290" // key1 / root

func writeConfig(t *testing.T, server *vaulttest.Server, mountPoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyring_vault.conf")
	content := fmt.Sprintf("vault_url = %s\nsecret_mount_point = %s\ntoken = %s\n", server.URL, mountPoint, server.Token)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_StoreFetchListRemove(t *testing.T) {
	server := vaulttest.NewServer(t)
	server.MountV2("secret")
	config := writeConfig(t, server, "secret/mysql")
	data := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

	out, err := run(t, "--config", config, "store", "key1", "root", "AES", data)
	require.NoError(t, err)
	assert.Contains(t, out, `Stored AES key "key1" for owner "root"`)
	assert.True(t, server.Has("secret/mysql/"+key1Signature))

	out, err = run(t, "--config", config, "fetch", "key1", "root")
	require.NoError(t, err)
	assert.Equal(t, "AES "+data+"\n", out)

	out, err = run(t, "--config", config, "list", "--json")
	require.NoError(t, err)
	var keys []vaultkeyring.KeyMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	assert.Equal(t, []vaultkeyring.KeyMetadata{{ID: "key1", Owner: "root"}}, keys)

	out, err = run(t, "--config", config, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "OWNER")
	assert.Contains(t, out, "key1")

	_, err = run(t, "--config", config, "remove", "key1", "root")
	require.NoError(t, err)
	assert.False(t, server.Has("secret/mysql/"+key1Signature))

	out, err = run(t, "--config", config, "list")
	require.NoError(t, err)
	assert.Equal(t, "No keys found.\n", out)
}

func TestCLI_Generate(t *testing.T) {
	server := vaulttest.NewServer(t)
	server.MountV1("kv")
	config := writeConfig(t, server, "kv")

	out, err := run(t, "--config", config, "generate", "key1", "root", "--type", "SECRET", "--length", "48")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 48 byte SECRET key")
	assert.True(t, server.Has("kv/"+key1Signature))

	_, err = run(t, "--config", config, "generate", "root", "--length", "7")
	assert.ErrorIs(t, err, vaultkeyring.ErrInvalidKeyLength)
}

func TestCLI_ResolveYAML(t *testing.T) {
	server := vaulttest.NewServer(t)
	server.MountV2("secret")
	config := writeConfig(t, server, "secret/mysql/prod")

	out, err := run(t, "--config", config, "resolve", "--output", "yaml")
	require.NoError(t, err)

	var got resolveOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "secret", got.MountPoint)
	assert.Equal(t, "mysql/prod", got.Directory)
	assert.Equal(t, "2", got.Version)
	assert.Equal(t, "********", got.Options["token"])
	assert.Equal(t, "<NONE>", got.Options["vault_ca"])
}

func TestCLI_ResolveText(t *testing.T) {
	server := vaulttest.NewServer(t)
	server.MountV1("kv")
	config := writeConfig(t, server, "kv/keyring")

	out, err := run(t, "--config", config, "resolve")
	require.NoError(t, err)
	assert.Contains(t, out, "kv/keyring")
	assert.NotContains(t, out, server.Token)
}

func TestCLI_FetchUnknownKey(t *testing.T) {
	server := vaulttest.NewServer(t)
	server.MountV2("secret")
	config := writeConfig(t, server, "secret")

	_, err := run(t, "--config", config, "fetch", "nope", "root")
	assert.True(t, vaultkeyring.IsNotFound(err))
}

func TestCLI_BadConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring_vault.conf")
	require.NoError(t, os.WriteFile(path, []byte("vault_url = http://127.0.0.1:1\n"), 0o600))

	_, err := run(t, "--config", path, "list")
	assert.True(t, vaultkeyring.IsConfigurationError(err))
}

func TestCLI_Version(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "keyring-vault v"+vaultkeyring.Version))
}

func TestCLI_Health(t *testing.T) {
	server := vaulttest.NewServer(t)
	server.MountV2("secret")
	config := writeConfig(t, server, "secret")

	out, err := run(t, "--config", config, "health", "--circuit-breaker", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "circuit_breaker")
	assert.Contains(t, out, "vault 1.15.2")

	server.Seal(true)
	_, err = run(t, "--config", config, "health")
	assert.ErrorIs(t, err, errUnhealthy)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnvironment.
const (
	EnvVaultAddr         = "VAULT_ADDR"
	EnvVaultToken        = "VAULT_TOKEN"
	EnvVaultCACert       = "VAULT_CACERT"
	EnvMountPoint        = "KEYRING_VAULT_MOUNT_POINT"
	EnvMountPointVersion = "KEYRING_VAULT_MOUNT_POINT_VERSION"
	EnvTimeout           = "KEYRING_VAULT_TIMEOUT"
)

// LoadFile reads credentials from path. Files ending in .yaml or .yml hold a
// flat YAML mapping; anything else is read as key=value lines.
func LoadFile(path string) (Credentials, error) {
	var (
		options map[string]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		options, err = readYAML(path)
	default:
		options, err = godotenv.Read(path)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	return FromOptions(options)
}

func readYAML(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	options := map[string]string{}
	if err := yaml.Unmarshal(raw, &options); err != nil {
		return nil, err
	}
	return options, nil
}

// FromEnvironment reads credentials from the standard Vault client variables
// plus the KEYRING_VAULT_* ones. Unset variables are left out, so missing
// required values are reported like a missing option.
func FromEnvironment() (Credentials, error) {
	mapping := map[string]string{
		OptionVaultURL:          EnvVaultAddr,
		OptionToken:             EnvVaultToken,
		OptionVaultCA:           EnvVaultCACert,
		OptionMountPoint:        EnvMountPoint,
		OptionMountPointVersion: EnvMountPointVersion,
		OptionTimeout:           EnvTimeout,
	}

	options := make(map[string]string, len(mapping))
	for option, env := range mapping {
		if value := getEnvOrDefault(env, ""); value != "" {
			options[option] = value
		}
	}
	return FromOptions(options)
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

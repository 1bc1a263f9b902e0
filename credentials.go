package vaultkeyring

import (
	"fmt"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/config"
)

// Credentials is everything needed to reach the keys stored in Vault. It is
// read once and never changed by the Keyring.
type Credentials = config.Credentials

// MountPointVersion is the KV engine version declared for the mount point.
type MountPointVersion = codec.Version

// MetadataEntry is one option name with its display value.
type MetadataEntry = config.MetadataEntry

// ParseMountPointVersion accepts AUTO, 1 and 2.
func ParseMountPointVersion(s string) (MountPointVersion, error) {
	v, err := codec.ParseVersion(s)
	if err != nil {
		return VersionAuto, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return v, nil
}

// LoadCredentialsFile reads credentials from a configuration file.
//
// Files ending in .yaml or .yml hold a flat mapping of option names to
// values. Any other file is read as key=value lines; when an option is
// repeated the last value wins.
//
// Required options: vault_url, secret_mount_point, token.
// Optional options: vault_ca, secret_mount_point_version (AUTO, 1, 2),
// timeout (seconds, default 15).
//
// Unknown options and empty values are rejected. The returned credentials
// are not validated yet; New does that.
func LoadCredentialsFile(path string) (Credentials, error) {
	creds, err := config.LoadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return creds, nil
}

// LoadCredentialsFromEnvironment reads credentials from environment variables.
//
// Required environment variables:
//   - VAULT_ADDR: Vault server URL
//   - VAULT_TOKEN: access token
//   - KEYRING_VAULT_MOUNT_POINT: secret mount point path
//
// Optional environment variables:
//   - VAULT_CACERT: CA bundle used to verify the server
//   - KEYRING_VAULT_MOUNT_POINT_VERSION: AUTO (default), 1 or 2
//   - KEYRING_VAULT_TIMEOUT: request timeout in seconds (default: 15)
func LoadCredentialsFromEnvironment() (Credentials, error) {
	creds, err := config.FromEnvironment()
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return creds, nil
}

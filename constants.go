package vaultkeyring

import (
	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/config"
)

// Mount point versions accepted in secret_mount_point_version.
const (
	// VersionAuto probes the server to find out which KV engine serves the
	// mount point. It is the default.
	VersionAuto = codec.VersionAuto

	// VersionV1 trusts the configuration and never probes.
	VersionV1 = codec.VersionV1

	// VersionV2 probes and fails when no KV v2 engine is found.
	VersionV2 = codec.VersionV2
)

// Key types.
const (
	KeyTypeAES    = "AES"
	KeyTypeRSA    = "RSA"
	KeyTypeDSA    = "DSA"
	KeyTypeSecret = "SECRET"
)

// Generation limits, in bytes.
const (
	// MaxSecretLength is the largest SECRET key Generate accepts.
	MaxSecretLength = 16384
)

// Environment variable names, see LoadCredentialsFromEnvironment.
const (
	EnvVaultAddr         = config.EnvVaultAddr
	EnvVaultToken        = config.EnvVaultToken
	EnvVaultCACert       = config.EnvVaultCACert
	EnvMountPoint        = config.EnvMountPoint
	EnvMountPointVersion = config.EnvMountPointVersion
	EnvTimeout           = config.EnvTimeout
)

// DefaultTimeout applies to every request when Credentials.Timeout is zero.
const DefaultTimeout = config.DefaultTimeout

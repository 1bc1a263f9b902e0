package config

import (
	"fmt"
	"strings"

	"github.com/hengadev/errsx"

	"github.com/hengadev/vaultkeyring/internal/codec"
)

// Validate checks every option and reports all violations at once as an
// errsx.Map keyed by option name.
func (c Credentials) Validate() error {
	errs := errsx.Map{}

	isHTTP := strings.HasPrefix(c.VaultURL, httpPrefix)
	isHTTPS := strings.HasPrefix(c.VaultURL, httpsPrefix)
	switch {
	case c.VaultURL == "":
		errs.Set(OptionVaultURL, "vault_url is required")
	case !isHTTP && !isHTTPS:
		errs.Set(OptionVaultURL, fmt.Sprintf("vault_url must be either %s or %s URL", httpPrefix, httpsPrefix))
	}

	switch {
	case c.MountPointPath == "":
		errs.Set(OptionMountPoint, "secret_mount_point is required")
	case strings.HasPrefix(c.MountPointPath, pathDelimiter):
		errs.Set(OptionMountPoint, fmt.Sprintf("secret_mount_point must not start with %s", pathDelimiter))
	case strings.HasSuffix(c.MountPointPath, pathDelimiter):
		errs.Set(OptionMountPoint, fmt.Sprintf("secret_mount_point must not end with %s", pathDelimiter))
	}

	if c.Token == "" {
		errs.Set(OptionToken, "token is required")
	}

	if c.CAPath != "" && isHTTP {
		errs.Set(OptionVaultCA, fmt.Sprintf("vault_ca is specified but vault_url is %s", httpPrefix))
	}

	switch c.MountPointVersion {
	case codec.VersionAuto, codec.VersionV1, codec.VersionV2:
	default:
		errs.Set(OptionMountPointVersion, fmt.Sprintf("unknown mount point version %d", int(c.MountPointVersion)))
	}

	if c.Timeout < 0 {
		errs.Set(OptionTimeout, "timeout must not be negative")
	}

	return errs.AsError()
}

// Warnings lists configuration choices that are allowed but risky.
func (c Credentials) Warnings() []string {
	var warnings []string
	if c.CAPath == "" && c.IsHTTPS() {
		warnings = append(warnings, fmt.Sprintf(
			"vault_ca is not specified but vault_url is %s. Please make sure that Vault's CA certificate is trusted by the machine from which you intend to connect to Vault.",
			httpsPrefix))
	}
	return warnings
}

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hengadev/vaultkeyring/internal/codec"
)

// Option names accepted in a credentials file.
const (
	OptionVaultURL          = "vault_url"
	OptionMountPoint        = "secret_mount_point"
	OptionVaultCA           = "vault_ca"
	OptionToken             = "token"
	OptionMountPointVersion = "secret_mount_point_version"
	OptionTimeout           = "timeout"
)

// DefaultTimeout bounds every request to Vault when no timeout is configured.
const DefaultTimeout = 15 * time.Second

const (
	httpPrefix    = "http://"
	httpsPrefix   = "https://"
	pathDelimiter = "/"
	noneValue     = "<NONE>"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

var requiredOptions = []string{OptionVaultURL, OptionMountPoint, OptionToken}

var knownOptions = map[string]bool{
	OptionVaultURL:          true,
	OptionMountPoint:        true,
	OptionVaultCA:           true,
	OptionToken:             true,
	OptionMountPointVersion: true,
	OptionTimeout:           true,
}

// Credentials is everything needed to reach the keys stored in Vault.
type Credentials struct {
	VaultURL          string
	CAPath            string
	Token             string
	MountPointPath    string
	MountPointVersion codec.Version
	Timeout           time.Duration
}

// FromOptions builds Credentials from option name/value pairs. Unknown
// options, empty values and missing required options are rejected.
func FromOptions(options map[string]string) (Credentials, error) {
	for name, value := range options {
		if !knownOptions[name] {
			return Credentials{}, fmt.Errorf("%w: unknown option %q", ErrInvalidCredentials, name)
		}
		if strings.TrimSpace(value) == "" {
			return Credentials{}, fmt.Errorf("%w: option %q has an empty value", ErrInvalidCredentials, name)
		}
	}
	for _, name := range requiredOptions {
		if _, ok := options[name]; !ok {
			return Credentials{}, fmt.Errorf("%w: could not read %s from the configuration", ErrInvalidCredentials, name)
		}
	}

	creds := Credentials{
		VaultURL:       strings.TrimSpace(options[OptionVaultURL]),
		CAPath:         strings.TrimSpace(options[OptionVaultCA]),
		Token:          strings.TrimSpace(options[OptionToken]),
		MountPointPath: strings.TrimSpace(options[OptionMountPoint]),
		Timeout:        DefaultTimeout,
	}

	if raw, ok := options[OptionMountPointVersion]; ok {
		version, err := codec.ParseVersion(raw)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %s must be either AUTO or a numeric value of 1 or 2: %w",
				ErrInvalidCredentials, OptionMountPointVersion, err)
		}
		creds.MountPointVersion = version
	}

	if raw, ok := options[OptionTimeout]; ok {
		timeout, err := ParseTimeout(raw)
		if err != nil {
			return Credentials{}, err
		}
		creds.Timeout = timeout
	}

	return creds, nil
}

// ParseTimeout reads a positive number of seconds.
func ParseTimeout(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || seconds == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number of seconds, got %q", ErrInvalidCredentials, OptionTimeout, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

func (c Credentials) IsHTTPS() bool {
	return strings.HasPrefix(c.VaultURL, httpsPrefix)
}

// MetadataEntry is one name/value pair describing the configuration.
type MetadataEntry struct {
	Name  string
	Value string
}

// Metadata lists the configuration with the token masked. Empty values are
// shown as <NONE>.
func (c Credentials) Metadata() []MetadataEntry {
	token := noneValue
	if c.Token != "" {
		token = strings.Repeat("*", 8)
	}
	return []MetadataEntry{
		{Name: OptionVaultURL, Value: orNone(c.VaultURL)},
		{Name: OptionMountPoint, Value: orNone(c.MountPointPath)},
		{Name: OptionVaultCA, Value: orNone(c.CAPath)},
		{Name: OptionToken, Value: token},
		{Name: OptionMountPointVersion, Value: c.MountPointVersion.String()},
		{Name: OptionTimeout, Value: strconv.FormatInt(int64(c.EffectiveTimeout()/time.Second), 10)},
	}
}

// EffectiveTimeout is Timeout, or DefaultTimeout when unset.
func (c Credentials) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func orNone(s string) string {
	if s == "" {
		return noneValue
	}
	return s
}

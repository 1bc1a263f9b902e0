// Package vaultkeyring stores and retrieves symmetric key material in a
// HashiCorp Vault KV secret engine, for use by a database server keyring.
//
// A Keyring is built from Credentials: the Vault address, an optional CA
// bundle, an access token and the secret mount point path. The KV engine
// version serving the mount point is detected automatically unless the
// credentials declare it.
//
// # Quick Start
//
//	creds, err := vaultkeyring.LoadCredentialsFile("/etc/mysql/keyring_vault.conf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	kr, err := vaultkeyring.New(ctx, creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer kr.Close()
//
//	if err := kr.Generate(ctx, "tablespace-key", "root", vaultkeyring.KeyTypeAES, 32); err != nil {
//	    log.Fatal(err)
//	}
//	key, err := kr.Fetch(ctx, "tablespace-key", "root")
//
// # Configuration File
//
// The credentials file holds one option per line:
//
//	vault_url = https://vault.example.com:8200
//	secret_mount_point = secret/mysql
//	vault_ca = /etc/vault/ca.pem
//	token = s.xxxxxxxx
//	secret_mount_point_version = AUTO
//	timeout = 15
//
// Files ending in .yaml or .yml use the same option names as a flat mapping.
//
// # Mount Points
//
// With secret_mount_point_version set to AUTO (the default) every prefix of
// the mount point path is probed, shortest first, with a GET on
// <prefix>/config. The first prefix answering like a KV v2 engine becomes the
// engine mount and the rest of the path becomes a directory inside it. When
// no prefix answers, the whole path is treated as a KV v1 mount. Declaring
// version 2 turns that fallback into an error.
//
// # Key Cache
//
// Key ids and owners are listed once at construction. A key's type and
// payload are read from Vault the first time it is fetched and served from
// memory afterwards. Remote calls issued through one Keyring never overlap.
//
// # Error Handling
//
// Errors wrap package sentinels and can be classified with IsParseError,
// IsRemoteError, IsTransportError, IsConfigurationError and IsNotFound.
// RemoteError carries the text of every error the Vault server returned.
package vaultkeyring

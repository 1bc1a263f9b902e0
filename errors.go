package vaultkeyring

import (
	"errors"

	"github.com/hengadev/vaultkeyring/internal/codec"
	"github.com/hengadev/vaultkeyring/internal/config"
	"github.com/hengadev/vaultkeyring/internal/keycache"
	"github.com/hengadev/vaultkeyring/internal/mount"
	"github.com/hengadev/vaultkeyring/internal/store"
)

var (
	// High-level errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnsupportedKeyType   = errors.New("unsupported key type")
	ErrInvalidKeyLength     = errors.New("invalid key length")
	ErrClosed               = errors.New("keyring is closed")

	// Cache errors
	ErrKeyNotFound = keycache.ErrKeyNotFound
	ErrInvalidKey  = keycache.ErrInvalidKey

	// Mount point resolution
	ErrVersionMismatch = mount.ErrVersionMismatch

	// Response parsing
	ErrMalformedJSON      = codec.ErrMalformedJSON
	ErrWrongShape         = codec.ErrWrongShape
	ErrMissingField       = codec.ErrMissingField
	ErrWrongType          = codec.ErrWrongType
	ErrSignatureTruncated = codec.ErrSignatureTruncated
	ErrSignatureBadLength = codec.ErrSignatureBadLength
	ErrResponseTooLarge   = store.ErrResponseTooLarge
)

// Error types callers can inspect with errors.As.
type (
	ParseError     = codec.ParseError
	SignatureError = codec.SignatureError
	RemoteError    = store.RemoteError
	TransportError = store.TransportError
	ResponseError  = store.ResponseError
)

// IsParseError returns true if a response or a key signature could not be decoded.
func IsParseError(err error) bool {
	var parseErr *codec.ParseError
	var sigErr *codec.SignatureError
	return errors.As(err, &parseErr) || errors.As(err, &sigErr)
}

// IsRemoteError returns true if the Vault server reported the failure.
func IsRemoteError(err error) bool {
	var remote *store.RemoteError
	return errors.As(err, &remote)
}

// IsTransportError returns true if Vault could not be reached at all.
func IsTransportError(err error) bool {
	var transport *store.TransportError
	return errors.As(err, &transport) || errors.Is(err, store.ErrResponseTooLarge)
}

// IsConfigurationError returns true if the error represents a configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, config.ErrInvalidCredentials) ||
		errors.Is(err, codec.ErrUnknownVersion) ||
		errors.Is(err, mount.ErrVersionMismatch) ||
		errors.Is(err, mount.ErrEmptyPath)
}

// IsNotFound returns true if the key is not known to the keyring.
func IsNotFound(err error) bool {
	return errors.Is(err, keycache.ErrKeyNotFound)
}

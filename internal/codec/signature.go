package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

const signatureLengthDelimiter = '_'

// Signature identifies a key by the pair (key id, owner id). Its encoded form
// is the storage name of the key on the Vault server.
type Signature struct {
	KeyID   string
	OwnerID string
}

// String returns the length-prefixed, not yet base64-wrapped form:
// <len(key_id)>_<key_id><len(owner_id)>_<owner_id>
func (s Signature) String() string {
	return strconv.Itoa(len(s.KeyID)) + string(signatureLengthDelimiter) + s.KeyID +
		strconv.Itoa(len(s.OwnerID)) + string(signatureLengthDelimiter) + s.OwnerID
}

// IsValid reports whether the signature names anything at all.
func (s Signature) IsValid() bool {
	return s.KeyID != "" || s.OwnerID != ""
}

// EncodeSignature returns the base64 storage name for s.
func EncodeSignature(s Signature) string {
	return base64.StdEncoding.EncodeToString([]byte(s.String()))
}

// DecodeSignature reverses EncodeSignature. Length prefixes are checked
// against the remaining buffer, so ids may contain any byte value,
// including digits and the delimiter itself.
func DecodeSignature(encoded string) (Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Signature{}, &SignatureError{Signature: encoded, Err: fmt.Errorf("%w: %v", ErrSignatureEncoding, err)}
	}

	var parts [2]string
	rest := raw
	for i := range parts {
		part, remaining, err := readLengthPrefixed(rest)
		if err != nil {
			return Signature{}, &SignatureError{Signature: encoded, Err: err}
		}
		parts[i] = part
		rest = remaining
	}

	return Signature{KeyID: parts[0], OwnerID: parts[1]}, nil
}

// readLengthPrefixed consumes one "<digits>_<payload>" segment from buf.
func readLengthPrefixed(buf []byte) (string, []byte, error) {
	digits := 0
	for digits < len(buf) && buf[digits] >= '0' && buf[digits] <= '9' {
		digits++
	}
	if digits == len(buf) {
		return "", nil, fmt.Errorf("%w: no %q after length prefix", ErrSignatureTruncated, signatureLengthDelimiter)
	}
	if buf[digits] != signatureLengthDelimiter {
		return "", nil, fmt.Errorf("%w: unexpected byte %q in length prefix", ErrSignatureBadLength, buf[digits])
	}
	if digits == 0 {
		return "", nil, fmt.Errorf("%w: empty length prefix", ErrSignatureBadLength)
	}

	length, err := strconv.Atoi(string(buf[:digits]))
	if err != nil || length < 0 {
		return "", nil, fmt.Errorf("%w: %q", ErrSignatureBadLength, buf[:digits])
	}

	payload := buf[digits+1:]
	if length > len(payload) {
		return "", nil, fmt.Errorf("%w: length prefix %d exceeds remaining %d bytes",
			ErrSignatureTruncated, length, len(payload))
	}
	return string(payload[:length]), payload[length:], nil
}

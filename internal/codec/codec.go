// Package codec encodes and decodes the JSON bodies exchanged with the Vault
// KV secrets engine and the compact key-signature format used as secret names.
//
// Every function is pure. Response bodies come from an untrusted peer, so each
// parser checks the type of every member it touches and reports the exact
// member path that broke the contract through a *ParseError.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
)

const (
	dataKey               = "data"
	keysKey               = "keys"
	typeKey               = "type"
	valueKey              = "value"
	errorsKey             = "errors"
	maxVersionsKey        = "max_versions"
	casRequiredKey        = "cas_required"
	deleteVersionAfterKey = "delete_version_after"
)

// KeyData is the type and raw payload of a stored key.
type KeyData struct {
	Type string
	Data []byte
}

// MountConfig is the engine configuration returned by GET <mount>/config on
// a KV v2 mount point.
type MountConfig struct {
	MaxVersions        uint
	CASRequired        bool
	DeleteVersionAfter string
}

// KeyList is the result of parsing a list response. Entries that could not be
// decoded are reported in Skipped and never abort the batch.
type KeyList struct {
	Signatures []Signature
	Skipped    []error
}

// ParseKeysList extracts key signatures from a {"data":{"keys":[...]}} body.
func ParseKeysList(body []byte) (KeyList, error) {
	if err := requireObject(body); err != nil {
		return KeyList{}, err
	}
	if _, err := requireContainer(body, jsonparser.Object, "an Object", dataKey); err != nil {
		return KeyList{}, err
	}
	keys, err := requireContainer(body, jsonparser.Array, "an Array", dataKey, keysKey)
	if err != nil {
		return KeyList{}, err
	}

	list := KeyList{Signatures: []Signature{}}
	index := 0
	_, err = jsonparser.ArrayEach(keys, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		path := fmt.Sprintf("%s.%s[%d]", dataKey, keysKey, index)
		index++
		if dataType != jsonparser.String {
			list.Skipped = append(list.Skipped, newWrongTypeError(path, "a String", nil))
			return
		}
		encoded, err := jsonparser.ParseString(value)
		if err != nil {
			list.Skipped = append(list.Skipped, newWrongTypeError(path, "a String", err))
			return
		}
		signature, err := DecodeSignature(encoded)
		if err != nil {
			list.Skipped = append(list.Skipped, err)
			return
		}
		list.Signatures = append(list.Signatures, signature)
	})
	if err != nil {
		return KeyList{}, &ParseError{Kind: MalformedJSON, Path: dataKey + "." + keysKey, Err: err}
	}
	return list, nil
}

// ParseKeyData extracts the key type and payload from a read response. KV v2
// wraps the secret in one more "data" envelope than KV v1.
func ParseKeyData(body []byte, version Version) (KeyData, error) {
	if err := requireObject(body); err != nil {
		return KeyData{}, err
	}
	path := []string{dataKey}
	if _, err := requireContainer(body, jsonparser.Object, "an Object", path...); err != nil {
		return KeyData{}, err
	}
	if version == VersionV2 {
		path = append(path, dataKey)
		if _, err := requireContainer(body, jsonparser.Object, "an Object", path...); err != nil {
			return KeyData{}, err
		}
	}

	keyType, err := requireString(body, append(path, typeKey)...)
	if err != nil {
		return KeyData{}, err
	}
	encoded, err := requireString(body, append(path, valueKey)...)
	if err != nil {
		return KeyData{}, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return KeyData{}, newWrongTypeError(joinPath(append(path, valueKey)), "a base64 String", err)
	}

	return KeyData{Type: keyType, Data: data}, nil
}

// ParseErrorMessages returns the entries of the "errors" array in order.
// A body without an "errors" member yields no messages and no error.
// Entries that are not strings are returned as their compact JSON text.
func ParseErrorMessages(body []byte) ([]string, error) {
	if err := requireObject(body); err != nil {
		return nil, err
	}
	raw, dataType, _, err := jsonparser.Get(body, errorsKey)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, &ParseError{Kind: MalformedJSON, Path: errorsKey, Err: err}
	}
	if dataType != jsonparser.Array {
		return nil, newWrongShapeError(errorsKey, "an Array")
	}

	messages := []string{}
	var entryErr error
	_, err = jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if entryErr != nil {
			return
		}
		if dataType == jsonparser.String {
			msg, err := jsonparser.ParseString(value)
			if err != nil {
				entryErr = newWrongTypeError(errorsKey, "an Array of Strings", err)
				return
			}
			messages = append(messages, msg)
			return
		}
		messages = append(messages, compactJSON(value))
	})
	if err != nil {
		return nil, &ParseError{Kind: MalformedJSON, Path: errorsKey, Err: err}
	}
	if entryErr != nil {
		return nil, entryErr
	}
	return messages, nil
}

// ParseErrors joins the "errors" entries of body with newlines.
func ParseErrors(body []byte) (string, error) {
	messages, err := ParseErrorMessages(body)
	if err != nil {
		return "", err
	}
	return strings.Join(messages, "\n"), nil
}

// ParseMountPointConfig decodes the response of GET <mount>/config. A body
// of this shape is what identifies a KV v2 mount point.
func ParseMountPointConfig(body []byte) (MountConfig, error) {
	if err := requireObject(body); err != nil {
		return MountConfig{}, err
	}
	if _, err := requireContainer(body, jsonparser.Object, "an Object", dataKey); err != nil {
		return MountConfig{}, err
	}

	maxVersionsPath := []string{dataKey, maxVersionsKey}
	raw, err := requireValue(body, jsonparser.Number, "an Unsigned Integer", maxVersionsPath...)
	if err != nil {
		return MountConfig{}, err
	}
	maxVersions, err := jsonparser.ParseInt(raw)
	if err != nil || maxVersions < 0 {
		return MountConfig{}, newWrongTypeError(joinPath(maxVersionsPath), "an Unsigned Integer", err)
	}

	casPath := []string{dataKey, casRequiredKey}
	raw, err = requireValue(body, jsonparser.Boolean, "a Boolean", casPath...)
	if err != nil {
		return MountConfig{}, err
	}
	casRequired, err := jsonparser.ParseBoolean(raw)
	if err != nil {
		return MountConfig{}, newWrongTypeError(joinPath(casPath), "a Boolean", err)
	}

	deleteVersionAfter, err := requireString(body, dataKey, deleteVersionAfterKey)
	if err != nil {
		return MountConfig{}, err
	}

	return MountConfig{
		MaxVersions:        uint(maxVersions),
		CASRequired:        casRequired,
		DeleteVersionAfter: deleteVersionAfter,
	}, nil
}

type keyPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ComposeWritePayload builds the body of a key write. encodedData must
// already be base64 encoded.
func ComposeWritePayload(keyType, encodedData string, version Version) ([]byte, error) {
	payload := keyPayload{Type: keyType, Value: encodedData}

	var (
		out []byte
		err error
	)
	if version == VersionV2 {
		out, err = json.Marshal(struct {
			Data keyPayload `json:"data"`
		}{Data: payload})
	} else {
		out, err = json.Marshal(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("compose write payload: %w", err)
	}
	return out, nil
}

func requireObject(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		return &ParseError{Kind: MalformedJSON}
	}
	_, dataType, _, err := jsonparser.Get(body)
	if err != nil {
		return &ParseError{Kind: MalformedJSON, Err: err}
	}
	if dataType != jsonparser.Object {
		return newWrongShapeError("", "an Object")
	}
	return nil
}

func requireContainer(body []byte, want jsonparser.ValueType, expected string, path ...string) ([]byte, error) {
	value, dataType, err := lookup(body, path...)
	if err != nil {
		return nil, err
	}
	if dataType != want {
		return nil, newWrongShapeError(joinPath(path), expected)
	}
	return value, nil
}

func requireValue(body []byte, want jsonparser.ValueType, expected string, path ...string) ([]byte, error) {
	value, dataType, err := lookup(body, path...)
	if err != nil {
		return nil, err
	}
	if dataType != want {
		return nil, newWrongTypeError(joinPath(path), expected, nil)
	}
	return value, nil
}

func requireString(body []byte, path ...string) (string, error) {
	raw, err := requireValue(body, jsonparser.String, "a String", path...)
	if err != nil {
		return "", err
	}
	s, err := jsonparser.ParseString(raw)
	if err != nil {
		return "", newWrongTypeError(joinPath(path), "a String", err)
	}
	return s, nil
}

func lookup(body []byte, path ...string) ([]byte, jsonparser.ValueType, error) {
	value, dataType, _, err := jsonparser.Get(body, path...)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, jsonparser.NotExist, newMissingFieldError(joinPath(path))
	}
	if err != nil {
		return nil, jsonparser.Unknown, &ParseError{Kind: MalformedJSON, Path: joinPath(path), Err: err}
	}
	return value, dataType, nil
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

func compactJSON(value []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}

package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireParseError(t *testing.T, err error, kind ParseErrorKind, path string) {
	t.Helper()
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, kind, parseErr.Kind, "unexpected kind for %v", err)
	assert.Equal(t, path, parseErr.Path)
}

func TestParseKeysList(t *testing.T) {
	first := Signature{KeyID: "key1", OwnerID: "root"}
	second := Signature{KeyID: "key2", OwnerID: ""}
	body := fmt.Sprintf(`{"request_id":"r","data":{"keys":["%s","%s"]}}`,
		EncodeSignature(first), EncodeSignature(second))

	list, err := ParseKeysList([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []Signature{first, second}, list.Signatures)
	assert.Empty(t, list.Skipped)
}

func TestParseKeysList_EmptyArray(t *testing.T) {
	list, err := ParseKeysList([]byte(`{"data":{"keys":[]}}`))
	require.NoError(t, err)
	assert.NotNil(t, list.Signatures)
	assert.Empty(t, list.Signatures)
}

func TestParseKeysList_SkipsUndecodableEntries(t *testing.T) {
	good := Signature{KeyID: "k", OwnerID: "o"}
	truncated := base64.StdEncoding.EncodeToString([]byte("10_k1_o"))
	body := fmt.Sprintf(`{"data":{"keys":[42,"%s","%s","subdir/"]}}`, truncated, EncodeSignature(good))

	list, err := ParseKeysList([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []Signature{good}, list.Signatures)
	require.Len(t, list.Skipped, 3)
	assert.ErrorIs(t, list.Skipped[0], ErrWrongType)
	assert.ErrorIs(t, list.Skipped[1], ErrSignatureTruncated)
}

func TestParseKeysList_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind ParseErrorKind
		path string
	}{
		{"empty body", ``, MalformedJSON, ""},
		{"malformed", `{"data":`, MalformedJSON, ""},
		{"root array", `[]`, WrongShape, ""},
		{"missing data", `{"other":1}`, MissingField, "data"},
		{"data not object", `{"data":[]}`, WrongShape, "data"},
		{"missing keys", `{"data":{}}`, MissingField, "data.keys"},
		{"keys not array", `{"data":{"keys":"x"}}`, WrongShape, "data.keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKeysList([]byte(tt.body))
			requireParseError(t, err, tt.kind, tt.path)
		})
	}
}

func TestParseKeyData(t *testing.T) {
	value := base64.StdEncoding.EncodeToString([]byte("secret-key-material"))

	t.Run("v1", func(t *testing.T) {
		body := fmt.Sprintf(`{"data":{"type":"AES","value":"%s"}}`, value)
		data, err := ParseKeyData([]byte(body), VersionV1)
		require.NoError(t, err)
		assert.Equal(t, "AES", data.Type)
		assert.Equal(t, []byte("secret-key-material"), data.Data)
	})

	t.Run("v2", func(t *testing.T) {
		body := fmt.Sprintf(`{"data":{"data":{"type":"RSA","value":"%s"},"metadata":{"version":3}}}`, value)
		data, err := ParseKeyData([]byte(body), VersionV2)
		require.NoError(t, err)
		assert.Equal(t, "RSA", data.Type)
		assert.Equal(t, []byte("secret-key-material"), data.Data)
	})

	t.Run("v1 body read as v2", func(t *testing.T) {
		body := fmt.Sprintf(`{"data":{"type":"AES","value":"%s"}}`, value)
		_, err := ParseKeyData([]byte(body), VersionV2)
		requireParseError(t, err, MissingField, "data.data")
		assert.ErrorIs(t, err, ErrMissingField)
	})
}

func TestParseKeyData_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		version Version
		kind    ParseErrorKind
		path    string
	}{
		{"malformed", `{`, VersionV1, MalformedJSON, ""},
		{"root string", `"x"`, VersionV1, WrongShape, ""},
		{"data not object", `{"data":1}`, VersionV1, WrongShape, "data"},
		{"inner data not object", `{"data":{"data":null}}`, VersionV2, WrongShape, "data.data"},
		{"missing type", `{"data":{"value":"AA=="}}`, VersionV1, MissingField, "data.type"},
		{"type not string", `{"data":{"type":1,"value":"AA=="}}`, VersionV1, WrongType, "data.type"},
		{"missing value", `{"data":{"data":{"type":"AES"}}}`, VersionV2, MissingField, "data.data.value"},
		{"value not string", `{"data":{"type":"AES","value":[1]}}`, VersionV1, WrongType, "data.value"},
		{"value not base64", `{"data":{"type":"AES","value":"@@@"}}`, VersionV1, WrongType, "data.value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKeyData([]byte(tt.body), tt.version)
			requireParseError(t, err, tt.kind, tt.path)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no errors member", `{"data":{}}`, ""},
		{"empty array", `{"errors":[]}`, ""},
		{"strings", `{"errors":["a","b"]}`, "a\nb"},
		{"mixed values", `{"errors":["permission denied", {"code": 403}, 7, null]}`, "permission denied\n{\"code\":403}\n7\nnull"},
		{"escaped string", `{"errors":["line \"quoted\""]}`, `line "quoted"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseErrors([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors_Failures(t *testing.T) {
	_, err := ParseErrors([]byte(`not json`))
	requireParseError(t, err, MalformedJSON, "")

	_, err = ParseErrors([]byte(`{"errors":"boom"}`))
	requireParseError(t, err, WrongShape, "errors")
}

func TestParseErrorMessages_KeepsOrder(t *testing.T) {
	messages, err := ParseErrorMessages([]byte(`{"errors":["third","first","second"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "first", "second"}, messages)
}

func TestParseMountPointConfig(t *testing.T) {
	body := `{
		"request_id": "a2c9306a-7f82-6a59-ebfa-bc6142d66c39",
		"lease_id": "",
		"renewable": false,
		"lease_duration": 0,
		"data": {
			"max_versions": 10,
			"cas_required": true,
			"delete_version_after": "0s"
		},
		"wrap_info": null,
		"warnings": null,
		"auth": null
	}`

	cfg, err := ParseMountPointConfig([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, MountConfig{MaxVersions: 10, CASRequired: true, DeleteVersionAfter: "0s"}, cfg)
}

func TestParseMountPointConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind ParseErrorKind
		path string
	}{
		{"malformed", `{"data"`, MalformedJSON, ""},
		{"missing data", `{"errors":["no handler for route"]}`, MissingField, "data"},
		{"missing max_versions", `{"data":{"cas_required":false,"delete_version_after":"0s"}}`, MissingField, "data.max_versions"},
		{"negative max_versions", `{"data":{"max_versions":-1,"cas_required":false,"delete_version_after":"0s"}}`, WrongType, "data.max_versions"},
		{"fractional max_versions", `{"data":{"max_versions":1.5,"cas_required":false,"delete_version_after":"0s"}}`, WrongType, "data.max_versions"},
		{"string max_versions", `{"data":{"max_versions":"0","cas_required":false,"delete_version_after":"0s"}}`, WrongType, "data.max_versions"},
		{"missing cas_required", `{"data":{"max_versions":0,"delete_version_after":"0s"}}`, MissingField, "data.cas_required"},
		{"cas_required not bool", `{"data":{"max_versions":0,"cas_required":"no","delete_version_after":"0s"}}`, WrongType, "data.cas_required"},
		{"missing delete_version_after", `{"data":{"max_versions":0,"cas_required":false}}`, MissingField, "data.delete_version_after"},
		{"delete_version_after not string", `{"data":{"max_versions":0,"cas_required":false,"delete_version_after":0}}`, WrongType, "data.delete_version_after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMountPointConfig([]byte(tt.body))
			requireParseError(t, err, tt.kind, tt.path)
		})
	}
}

func TestComposeWritePayload(t *testing.T) {
	t.Run("v1 is flat", func(t *testing.T) {
		out, err := ComposeWritePayload("AES", "AAEC", VersionV1)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, map[string]any{"type": "AES", "value": "AAEC"}, decoded)
	})

	t.Run("v2 is wrapped in data", func(t *testing.T) {
		out, err := ComposeWritePayload("SECRET", "AAEC", VersionV2)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, map[string]any{
			"data": map[string]any{"type": "SECRET", "value": "AAEC"},
		}, decoded)
	})

	t.Run("composed v2 payload parses back", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte{0, 1, 2, 255})
		out, err := ComposeWritePayload("AES", encoded, VersionV2)
		require.NoError(t, err)

		// a read response carries the written payload under one more "data" level
		data, err := ParseKeyData([]byte(`{"data":`+string(out)+`}`), VersionV2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 1, 2, 255}, data.Data)
	})
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		raw     string
		want    Version
		wantErr bool
	}{
		{"", VersionAuto, false},
		{"AUTO", VersionAuto, false},
		{"auto", VersionAuto, false},
		{"1", VersionV1, false},
		{" 2 ", VersionV2, false},
		{"3", VersionAuto, true},
		{"0", VersionAuto, true},
		{"two", VersionAuto, true},
		{"-1", VersionAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseVersion(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.String(), mustVersion(t, got.String()).String())
		})
	}
}

func mustVersion(t *testing.T, raw string) Version {
	t.Helper()
	v, err := ParseVersion(raw)
	require.NoError(t, err)
	return v
}

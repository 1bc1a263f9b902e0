package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Version identifies the KV secrets engine protocol spoken by a mount point.
type Version int

const (
	// VersionAuto asks the resolver to detect the version by probing.
	VersionAuto Version = iota
	VersionV1
	VersionV2
)

const versionAutoLabel = "AUTO"

func (v Version) String() string {
	switch v {
	case VersionAuto:
		return versionAutoLabel
	case VersionV1:
		return "1"
	case VersionV2:
		return "2"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion converts a configuration value ("AUTO", "1" or "2") into a Version.
// An empty value is treated as AUTO.
func ParseVersion(raw string) (Version, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, versionAutoLabel) {
		return VersionAuto, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return VersionAuto, fmt.Errorf("%w: %q is neither AUTO nor a numeric value", ErrUnknownVersion, raw)
	}
	switch n {
	case 1:
		return VersionV1, nil
	case 2:
		return VersionV2, nil
	default:
		return VersionAuto, fmt.Errorf("%w: must be either 1 or 2, got %d", ErrUnknownVersion, n)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

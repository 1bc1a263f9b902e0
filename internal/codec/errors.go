package codec

import (
	"errors"
	"fmt"
)

var (
	// Parse errors
	ErrMalformedJSON = errors.New("malformed JSON")
	ErrWrongShape    = errors.New("unexpected JSON shape")
	ErrMissingField  = errors.New("missing required field")
	ErrWrongType     = errors.New("invalid field type")

	// Signature errors
	ErrSignatureTruncated = errors.New("key signature truncated")
	ErrSignatureBadLength = errors.New("key signature has invalid length prefix")
	ErrSignatureEncoding  = errors.New("key signature is not valid base64")

	ErrUnknownVersion = errors.New("unknown mount point version")
)

// ParseErrorKind classifies why a response body was rejected.
type ParseErrorKind int

const (
	MalformedJSON ParseErrorKind = iota
	WrongShape
	MissingField
	WrongType
)

// String returns the string representation of the parse error kind
func (k ParseErrorKind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed_json"
	case WrongShape:
		return "wrong_shape"
	case MissingField:
		return "missing_field"
	case WrongType:
		return "wrong_type"
	default:
		return "unknown"
	}
}

func (k ParseErrorKind) sentinel() error {
	switch k {
	case MalformedJSON:
		return ErrMalformedJSON
	case WrongShape:
		return ErrWrongShape
	case MissingField:
		return ErrMissingField
	default:
		return ErrWrongType
	}
}

// ParseError reports a response body that violates the expected contract.
// Path is the dotted member path that failed ("data.keys"); it is empty for
// failures on the document root.
type ParseError struct {
	Kind     ParseErrorKind
	Path     string
	Expected string
	Err      error
}

func (e *ParseError) Error() string {
	var msg string
	switch e.Kind {
	case MalformedJSON:
		msg = "response is not valid JSON"
	case WrongShape:
		msg = fmt.Sprintf("%s is not %s", e.location(), e.Expected)
	case MissingField:
		msg = fmt.Sprintf("response does not have %q member", e.Path)
	case WrongType:
		msg = fmt.Sprintf("%s is not %s", e.location(), e.Expected)
	default:
		msg = "response could not be parsed"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.sentinel(), msg)
}

func (e *ParseError) location() string {
	if e.Path == "" {
		return "response"
	}
	return fmt.Sprintf("response[%q]", e.Path)
}

// Is reports whether target is the sentinel matching the error kind.
func (e *ParseError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newMissingFieldError(path string) error {
	return &ParseError{Kind: MissingField, Path: path}
}

func newWrongTypeError(path, expected string, cause error) error {
	return &ParseError{Kind: WrongType, Path: path, Expected: expected, Err: cause}
}

func newWrongShapeError(path, expected string) error {
	return &ParseError{Kind: WrongShape, Path: path, Expected: expected}
}

// SignatureError reports a key signature that could not be decoded.
type SignatureError struct {
	Signature string
	Err       error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("could not decode key signature %q: %v", e.Signature, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

package store

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Operation names a StoreClient call in errors, logs and metrics.
type Operation string

const (
	OpList   Operation = "list"
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
	OpProbe  Operation = "probe"
)

func (o Operation) failure() string {
	switch o {
	case OpList:
		return "could not retrieve list of keys from Vault"
	case OpRead:
		return "could not read key from Vault"
	case OpWrite:
		return "could not write key to Vault"
	case OpDelete:
		return "could not delete key from Vault"
	case OpProbe:
		return "could not probe mount point configuration"
	default:
		return "Vault operation failed"
	}
}

// TransportError means no response was received.
type TransportError struct {
	Op  Operation
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op.failure(), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is a failure the server reported, either through a non-2xx
// status or through an "errors" member. Errors keeps the server's entries in
// order and may be nil when the response carried none.
type RemoteError struct {
	Op         Operation
	StatusCode int
	Errors     *multierror.Error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op.failure())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if text := e.Text(); text != "" {
		b.WriteString(". Vault has returned the following error(s): ")
		b.WriteString(text)
	}
	return b.String()
}

// Text is the server-reported messages joined with newlines.
func (e *RemoteError) Text() string {
	if e.Errors == nil || len(e.Errors.Errors) == 0 {
		return ""
	}
	return e.Errors.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Errors.ErrorOrNil()
}

// ResponseError is a response the codec could not make sense of.
type ResponseError struct {
	Op  Operation
	Err error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op.failure(), e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func newRemoteError(op Operation, status int, messages []string) *RemoteError {
	var bundle *multierror.Error
	for _, msg := range messages {
		bundle = multierror.Append(bundle, remoteMessage(msg))
	}
	if bundle != nil {
		bundle.ErrorFormat = joinLines
	}
	return &RemoteError{Op: op, StatusCode: status, Errors: bundle}
}

type remoteMessage string

func (m remoteMessage) Error() string {
	return string(m)
}

func joinLines(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

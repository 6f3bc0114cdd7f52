package ddns

import (
	"errors"
	"fmt"
)

// NetworkKind classifies why a network call did not complete.
type NetworkKind int

const (
	NetworkOther NetworkKind = iota
	// NetworkConnectionUnavailable means no connection could be established,
	// e.g. the host has no route for the requested address family.
	NetworkConnectionUnavailable
	NetworkDNS
	NetworkTimeout
	// NetworkStatus means the remote answered with an unexpected status.
	NetworkStatus
)

func (k NetworkKind) String() string {
	switch k {
	case NetworkConnectionUnavailable:
		return "connection unavailable"
	case NetworkDNS:
		return "name resolution failed"
	case NetworkTimeout:
		return "timeout"
	case NetworkStatus:
		return "unexpected status"
	}
	return "transport failure"
}

// TransportError is returned when a request to a remote service could not complete.
type TransportError struct {
	Op     string
	URL    string
	Kind   NetworkKind
	Status string // set when Kind is NetworkStatus
	Err    error
}

func (e *TransportError) Error() string {
	if e.Kind == NetworkStatus {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.URL, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a rejection reported by the provider in a response envelope.
//
// Only the first error of the envelope is kept; Extra counts the rest.
type RemoteError struct {
	Code    int
	Message string
	Extra   int
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("cloudflare error %d: %s", e.Code, e.Message)
	if e.Extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", e.Extra)
	}
	return msg
}

// DecodeError is returned when a response body does not have the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type UnsupportedRecordTypeError struct {
	RecordID string
	Type     string
}

func (e *UnsupportedRecordTypeError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("unsupported record type %q", e.Type)
	}
	return fmt.Sprintf("record %s has unsupported type %q", e.RecordID, e.Type)
}

// MissingConfigError reports a required input that was not supplied.
type MissingConfigError struct {
	Field string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Field)
}

// AbortError is returned by RunDDNS when a record stopped the pass.
type AbortError struct {
	RecordID string
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("pass aborted at record %s: %s", e.RecordID, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// IsConnectionUnavailable reports whether err is a transport failure
// where no connection could be established.
func IsConnectionUnavailable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == NetworkConnectionUnavailable
}

// ErrorKind names the taxonomy class of err for log and metric labels.
func ErrorKind(err error) string {
	var (
		te  *TransportError
		re  *RemoteError
		de  *DecodeError
		ue  *UnsupportedRecordTypeError
		mce *MissingConfigError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &re):
		return "remote_rejected"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &ue):
		return "unsupported_record_type"
	case errors.As(err, &mce):
		return "missing_configuration"
	}
	return "other"
}

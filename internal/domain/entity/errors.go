package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable is returned when the upstream token catalog could not be fetched.
	// An empty token list accompanying it means "temporarily unknown", not "no tokens exist".
	ErrCatalogUnavailable = errors.New("token catalog unavailable")

	// ErrInvalidConfiguration is returned when a wallet configuration snapshot is rejected.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// FetchErrorKind classifies a failed price fetch.
type FetchErrorKind int

const (
	// NetworkError covers connection failures and timeouts.
	NetworkError FetchErrorKind = iota + 1
	// UpstreamError covers non-2xx responses.
	UpstreamError
	// DecodeError covers malformed payloads.
	DecodeError
)

func (k FetchErrorKind) String() string {
	switch k {
	case NetworkError:
		return "network"
	case UpstreamError:
		return "upstream"
	case DecodeError:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned by price and catalog fetches. Every kind is retryable.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int // set for UpstreamError
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == UpstreamError {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchErrorKindOf returns the kind of the first FetchError in err's chain, or 0.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

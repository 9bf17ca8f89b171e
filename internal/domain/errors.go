package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation signals a request that is missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrPoolClosed is returned when a closed browser pool is used.
	ErrPoolClosed = errors.New("browser pool closed")
)

// AssetNotFoundError reports that none of the candidate paths for a logical
// asset exist.
type AssetNotFoundError struct {
	Asset string
	Tried []string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("%s asset not found; tried: %s", e.Asset, strings.Join(e.Tried, ", "))
}

// AssetEmptyError reports an asset file that exists but has no content.
type AssetEmptyError struct {
	Asset string
	Path  string
}

func (e *AssetEmptyError) Error() string {
	return fmt.Sprintf("%s asset is empty: %s", e.Asset, e.Path)
}

// MissingPlaceholderError is returned in strict mode when the template lacks
// an injection marker.
type MissingPlaceholderError struct {
	Placeholder string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("template is missing placeholder %q", e.Placeholder)
}

// RenderErrorKind separates timeouts from other renderer failures.
type RenderErrorKind string

const (
	RenderTimeout RenderErrorKind = "timeout"
	RenderFailure RenderErrorKind = "failure"
)

// RenderError wraps a failed render attempt.
type RenderError struct {
	Kind  RenderErrorKind
	Tier  string
	Cause error
}

func (e *RenderError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("render %s (%s tier)", e.Kind, e.Tier)
	}
	return fmt.Sprintf("render %s (%s tier): %v", e.Kind, e.Tier, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// NewRenderError classifies err as a timeout when a deadline was exceeded.
func NewRenderError(tier string, err error) *RenderError {
	kind := RenderFailure
	if errors.Is(err, context.DeadlineExceeded) {
		kind = RenderTimeout
	}
	return &RenderError{Kind: kind, Tier: tier, Cause: err}
}

// HTTPStatus maps a pipeline error to the response status code.
// Asset, template and render failures are all server-side.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEngineRejected signals a non-200 answer from the conversion engine.
	ErrEngineRejected = errors.New("conversion engine rejected the request")
	// ErrEmptyPDF signals that the engine answered 200 without a body.
	ErrEmptyPDF = errors.New("received empty PDF content")
	// ErrUnsupported signals that the configured engine cannot perform the operation.
	ErrUnsupported = errors.New("operation not supported by engine")
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// ValidationError describes a client input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

const maxErrorBody = 256

// EngineError carries the engine status code and a trimmed response body.
type EngineError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *EngineError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n]
	}
	if body == "" {
		return fmt.Sprintf("%s: engine returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: engine returned %d: %s", e.Op, e.StatusCode, body)
}

func (e *EngineError) Unwrap() error { return ErrEngineRejected }

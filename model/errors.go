package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors of the chat core. Typed errors below match them through
// errors.Is.
var (
	ErrMalformedRequest      = errors.New("malformed request")
	ErrPayloadTooLarge       = errors.New("payload too large")
	ErrRateLimited           = errors.New("rate limited")
	ErrChatAlreadyProcessing = errors.New("chat is already processing a request")
	ErrChatNotFound          = errors.New("chat not found")
)

// Severity levels used to pick the error reported after a failed fallback
// chain. Lower wins.
const (
	LevelMalformedRequest = 1
	LevelPayloadTooLarge  = 2
	LevelRateLimited      = 3
	LevelGeneric          = 9
)

// BackendKind classifies a failed backend call.
type BackendKind int

const (
	BackendGeneric BackendKind = iota
	BackendMalformedRequest
	BackendPayloadTooLarge
	BackendRateLimited
)

// BackendError is a classified failure of one model backend.
type BackendError struct {
	Kind    BackendKind
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	label := "backend error"
	switch e.Kind {
	case BackendMalformedRequest:
		label = "malformed request"
	case BackendPayloadTooLarge:
		label = "payload too large"
	case BackendRateLimited:
		label = "rate limited"
	}
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s (HTTP %d): %s", label, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", label, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", label, e.Err)
	default:
		return label
	}
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets BackendError match the taxonomy sentinels.
func (e *BackendError) Is(target error) bool {
	switch e.Kind {
	case BackendMalformedRequest:
		return target == ErrMalformedRequest
	case BackendPayloadTooLarge:
		return target == ErrPayloadTooLarge
	case BackendRateLimited:
		return target == ErrRateLimited
	}
	return false
}

// Level returns the severity used by the fallback policy.
func (e *BackendError) Level() int {
	switch e.Kind {
	case BackendMalformedRequest:
		return LevelMalformedRequest
	case BackendPayloadTooLarge:
		return LevelPayloadTooLarge
	case BackendRateLimited:
		return LevelRateLimited
	default:
		return LevelGeneric
	}
}

// Typed reports whether the error carries a specific classification.
func (e *BackendError) Typed() bool {
	return e.Kind != BackendGeneric
}

// ClassifyStatus maps an HTTP status code onto a BackendError.
func ClassifyStatus(status int, message string, err error) *BackendError {
	kind := BackendGeneric
	switch {
	case status == http.StatusTooManyRequests:
		kind = BackendRateLimited
	case status == http.StatusRequestEntityTooLarge:
		kind = BackendPayloadTooLarge
	case status >= 400 && status < 500 && status != http.StatusUnauthorized &&
		status != http.StatusForbidden && status != http.StatusNotFound &&
		status != http.StatusRequestTimeout:
		kind = BackendMalformedRequest
	}
	return &BackendError{Kind: kind, Status: status, Message: message, Err: err}
}

// AsBackendError returns err as a *BackendError, wrapping unclassified
// errors as generic ones.
func AsBackendError(err error) *BackendError {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return &BackendError{Kind: BackendGeneric, Err: err}
}

// ChatNotFoundError names the unregistered chat id.
type ChatNotFoundError struct {
	ID string
}

func (e *ChatNotFoundError) Error() string {
	return fmt.Sprintf("chat %s not found", e.ID)
}

func (e *ChatNotFoundError) Is(target error) bool {
	return target == ErrChatNotFound
}

// ChatAlreadyProcessingError names the chat whose processing lock is held.
type ChatAlreadyProcessingError struct {
	ID string
}

func (e *ChatAlreadyProcessingError) Error() string {
	return fmt.Sprintf("chat %s is already processing a request", e.ID)
}

func (e *ChatAlreadyProcessingError) Is(target error) bool {
	return target == ErrChatAlreadyProcessing
}

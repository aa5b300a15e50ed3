package app

import (
	"errors"
	"fmt"
	"net/http"

	"policyforge/api/internal/export"
	"policyforge/api/internal/generate"
	"policyforge/api/internal/history"
	"policyforge/api/internal/store"
	"policyforge/api/internal/validate"
)

const providerUnavailableMessage = "Our AI provider is currently unavailable. Please try again in a moment."

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates an error into the response the client sees. Upstream
// and storage detail never reaches the message.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", validationErr.Issues
	}
	switch {
	case errors.Is(err, export.ErrInvalidFormat):
		return http.StatusBadRequest, "INVALID_FORMAT", "format must be 'pdf' or 'docx'", nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, generate.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", providerUnavailableMessage, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"policyforge/api/internal/export"
	"policyforge/api/internal/generate"
	"policyforge/api/internal/history"
	"policyforge/api/internal/store"
	"policyforge/api/internal/validate"
)

func TestMapError(t *testing.T) {
	issues := []validate.Issue{{Path: "/topic", Message: "minLength: got 2, want 3"}}
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"domain error", domainError(http.StatusConflict, "CONFLICT", "Conflict", nil), http.StatusConflict, "CONFLICT", "Conflict"},
		{"validation", &validate.Error{Issues: issues}, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request"},
		{"invalid format", fmt.Errorf("parse: %w", export.ErrInvalidFormat), http.StatusBadRequest, "INVALID_FORMAT", "format must be 'pdf' or 'docx'"},
		{"policy not found", store.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Not found"},
		{"revision not found", history.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Not found"},
		{"provider", &generate.ProviderError{Op: "call", Err: errors.New("HTTP 429: key=secret")}, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", providerUnavailableMessage},
		{"pdf runtime missing", export.ErrPDFDependencyMissing, http.StatusInternalServerError, "SERVER_ERROR", "Server error"},
		{"unknown", errors.New("pq: relation does not exist"), http.StatusInternalServerError, "SERVER_ERROR", "Server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message, details := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.message, message)
			if tt.code == "VALIDATION_ERROR" {
				assert.Equal(t, issues, details)
			} else {
				assert.Nil(t, details)
			}
		})
	}
}

func TestDomainErrorMessage(t *testing.T) {
	var nilErr *DomainError
	assert.Equal(t, "", nilErr.Error())
	assert.Equal(t, "NOT_FOUND: Not found", domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil).Error())
}

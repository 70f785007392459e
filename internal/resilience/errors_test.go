// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestServiceErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *ServiceError
		wantCode   ErrorCode
		wantStatus int
	}{
		{"not found", NewNotFoundError("missing", nil), ErrorCodeNotFound, http.StatusNotFound},
		{"validation", NewValidationError("bad input", nil), ErrorCodeValidation, http.StatusBadRequest},
		{"retrieval", NewRetrievalError("store down", nil), ErrorCodeRetrieval, http.StatusBadGateway},
		{"generation", NewGenerationError("models failed", nil), ErrorCodeGeneration, http.StatusBadGateway},
		{"timeout", NewTimeoutError("deadline", nil), ErrorCodeTimeout, http.StatusRequestTimeout},
		{"internal", NewInternalError("oops", nil), ErrorCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, tt.err.StatusCode)
			}
		})
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := NewRetrievalError("store down", cause)

	if !errors.Is(err, cause) {
		t.Error("ServiceError should unwrap to its internal error")
	}
}

func TestCodeOfWrappedError(t *testing.T) {
	inner := NewNotFoundError("collection missing", nil)
	wrapped := fmt.Errorf("retrieval step: %w", inner)

	if code := CodeOf(wrapped); code != ErrorCodeNotFound {
		t.Errorf("Expected NOT_FOUND through wrapping, got %s", code)
	}
	if status := StatusOf(wrapped); status != http.StatusNotFound {
		t.Errorf("Expected 404 through wrapping, got %d", status)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if code := CodeOf(errors.New("plain")); code != ErrorCodeInternal {
		t.Errorf("Plain errors should classify as INTERNAL_ERROR, got %s", code)
	}
	if status := StatusOf(errors.New("plain")); status != http.StatusInternalServerError {
		t.Errorf("Plain errors should map to 500, got %d", status)
	}
}

func TestToErrorResponse(t *testing.T) {
	err := NewValidationError("section name required", nil)
	resp := err.ToErrorResponse()

	if resp.Error != "section name required" {
		t.Errorf("Unexpected error message: %s", resp.Error)
	}
	if resp.Code != string(ErrorCodeValidation) {
		t.Errorf("Unexpected code: %s", resp.Code)
	}
	if resp.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestAsServiceErrorNil(t *testing.T) {
	var target *ServiceError
	if AsServiceError(nil, &target) {
		t.Error("nil error should not match a ServiceError")
	}
}

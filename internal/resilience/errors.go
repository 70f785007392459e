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
	"net/http"
	"time"
)

// ErrorCode classifies failures across the generation pipeline
type ErrorCode string

const (
	// ErrorCodeNotFound is returned for unknown collections or sections
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeValidation is returned for malformed or conflicting requests
	ErrorCodeValidation ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeRetrieval is returned when the vector store is unreachable
	// or produced no usable context
	ErrorCodeRetrieval ErrorCode = "RETRIEVAL_FAILED"
	// ErrorCodeGeneration is returned when both the primary and fallback
	// models failed to produce a completion
	ErrorCodeGeneration ErrorCode = "GENERATION_FAILED"
	// ErrorCodeTimeout is returned when a model call or event sink write
	// exceeded its deadline
	ErrorCodeTimeout ErrorCode = "TIMEOUT"
	// ErrorCodeInternal is the catch-all for unexpected failures
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries a user-facing message, an error code, and the HTTP
// status to use when the error surfaces at the request boundary
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ErrorResponse is the JSON body written for errors at the HTTP boundary
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToErrorResponse converts a ServiceError to its wire representation
func (e *ServiceError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		Timestamp: time.Now(),
	}
}

// NewServiceError creates a ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewNotFoundError creates an error for an unknown collection or section
func NewNotFoundError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeNotFound, http.StatusNotFound, internal)
}

// NewValidationError creates an error for a malformed request
func NewValidationError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeValidation, http.StatusBadRequest, internal)
}

// NewRetrievalError creates an error for a failed context retrieval
func NewRetrievalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeRetrieval, http.StatusBadGateway, internal)
}

// NewGenerationError creates an error for a failed generation attempt
func NewGenerationError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeGeneration, http.StatusBadGateway, internal)
}

// NewTimeoutError creates an error for an exceeded deadline
func NewTimeoutError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeTimeout, http.StatusRequestTimeout, internal)
}

// NewInternalError creates an error for unexpected failures
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternal, http.StatusInternalServerError, internal)
}

// AsServiceError reports whether err is (or wraps) a ServiceError
func AsServiceError(err error, target **ServiceError) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// CodeOf returns the error code for err, or ErrorCodeInternal when err does
// not carry a ServiceError
func CodeOf(err error) ErrorCode {
	var serviceErr *ServiceError
	if AsServiceError(err, &serviceErr) {
		return serviceErr.Code
	}
	return ErrorCodeInternal
}

// StatusOf returns the HTTP status for err, defaulting to 500
func StatusOf(err error) int {
	var serviceErr *ServiceError
	if AsServiceError(err, &serviceErr) {
		return serviceErr.StatusCode
	}
	return http.StatusInternalServerError
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EndpointExecutionResult is what the Endpoint Executor returns for a
// single planned endpoint call.
type EndpointExecutionResult struct {
	EndpointID      uuid.UUID `json:"endpointId"`
	Success         bool      `json:"success"`
	StatusCode      int       `json:"statusCode"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	Timestamp       time.Time `json:"timestamp"`
	ResponseContent string    `json:"responseContent,omitempty"`
	Truncated       bool      `json:"truncated,omitempty"`
	Error           string    `json:"error,omitempty"`
	Attempts        int       `json:"attempts"`
	Aborted         bool      `json:"aborted,omitempty"`
}

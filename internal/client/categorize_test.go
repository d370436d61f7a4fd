package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/sensor-event-correlator/internal/circuitbreaker"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory,
// including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"invalid API key", ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
		{"wrapped invalid API key", fmt.Errorf("places: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"not found", fmt.Errorf("article: %w", ErrNotFound), ErrorCategoryNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", ErrUpstreamFailure, ErrorCategoryUpstream},
		{"circuit open", fmt.Errorf("chat: %w", circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"timeout in message", errors.New("geocode request timeout"), ErrorCategoryTimeout},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"parse in message", errors.New("parse response: invalid json"), ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestIsBreakerFailure verifies which errors count against a circuit.
func TestIsBreakerFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("geocode: %w", ErrNotFound), false},
		{context.Canceled, false},
		{ErrUpstreamFailure, true},
		{context.DeadlineExceeded, true},
		{ErrInvalidAPIKey, true},
	}
	for _, tt := range tests {
		if got := IsBreakerFailure(tt.err); got != tt.want {
			t.Errorf("IsBreakerFailure(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

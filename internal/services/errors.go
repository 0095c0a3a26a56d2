// Package services defines the business logic for the call lifecycle: call
// creation and termination from provider webhooks, operator transitions,
// dashboard read projections and archiving. This file centralizes the
// service-level error values so handlers can map them to HTTP results
// consistently.
//
// Error policy shared by every service method:
//   - validation failures return one of the sentinels below and issue no SQL;
//   - a guarded transition that matches no row is a business no-op reported
//     as (false, nil) and logged at warn level;
//   - infrastructure failures are wrapped with %w, logged at error level and
//     returned to the caller.
package services

import "errors"

var (
	// ErrMissingConversationID is returned when a webhook payload that must
	// reference an existing call carries no conversation_id.
	ErrMissingConversationID = errors.New("conversation_id is required")

	// ErrInvalidCallID is returned for non-positive call identifiers.
	ErrInvalidCallID = errors.New("call id must be a positive integer")

	// ErrInvalidAgent is returned when an agent name is shorter than
	// MinAgentNameRunes after trimming.
	ErrInvalidAgent = errors.New("agent name must be at least 2 characters")

	// ErrCallNotFound indicates that no call (or call notification) exists
	// for the requested identifier.
	ErrCallNotFound = errors.New("call not found")
)

// Package fault is the failure taxonomy of the lifecycle engine. Every
// operation fails with exactly one of these types so the transport can map
// failures to response codes without string matching.
package fault

import "fmt"

// NotFoundError indicates an identifier unresolved in a collection.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

// ForbiddenError indicates a failed authorization predicate.
type ForbiddenError struct {
	Op      string
	ActorID string
	Reason  string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s: actor %s not permitted: %s", e.Op, e.ActorID, e.Reason)
}

// InvalidTransitionError indicates an operation not legal in the current
// status.
type InvalidTransitionError struct {
	Op   string
	From string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s not allowed from status %s", e.Op, e.From)
}

// ValidationError indicates a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError wraps a failed record-store call. Folder-service failures
// are never wrapped here; they are downgraded to warnings at the call site.
type UpstreamError struct {
	System string
	Err    error
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.System, e.Err)
}

func (e UpstreamError) Unwrap() error { return e.Err }

package annotation

import "fmt"

// ValidationError marks a malformed span draft. It is raised before
// any persistence call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid span: " + e.Reason
}

// NotFoundError marks a mutation that referenced a span id absent from
// the current list. Lifecycle operations treat it as already-resolved.
type NotFoundError struct {
	SpanID string
}

func (e *NotFoundError) Error() string {
	return "span not found: " + e.SpanID
}

// PersistenceError wraps any failure from the external span
// collaborator. The in-memory state is left at the last confirmed
// reload when one occurs.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UnresolvableSuggestionError marks a suggestion whose text could not
// be located in the document. The suggestion produces no span but
// remains available to the caller for manual action.
type UnresolvableSuggestionError struct {
	Label string
	Text  string
}

func (e *UnresolvableSuggestionError) Error() string {
	if e.Text == "" {
		return "suggestion has no text to match"
	}
	return fmt.Sprintf("suggested text %q not found in document", e.Text)
}

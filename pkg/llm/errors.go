package llm

import "fmt"

// AuthError indicates the identity endpoint was unreachable or returned
// a malformed payload. Token acquisition is not retried internally;
// callers decide whether to retry the whole request.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("identity endpoint: %s (status %d)", e.Message, e.Status)
	}
	return "identity endpoint: " + e.Message
}

// SchemaError indicates structured output could not be validated even
// after repair. It carries both the original and the repaired text for
// diagnostics.
type SchemaError struct {
	Original string
	Repaired string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("structured output invalid: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

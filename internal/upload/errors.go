package upload

import "fmt"

// AuthError reports rejected credentials or a rejected session.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d)", e.Status)
}

// RequestError reports a non-success status on a required call. Body
// carries the leading bytes of the response for diagnostics.
type RequestError struct {
	Op     string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

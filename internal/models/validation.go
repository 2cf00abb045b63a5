package models

import "fmt"

// ValidationError rejects a malformed event before anything is appended.
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	if err.Field == "" {
		return "invalid event: " + err.Reason
	}
	return fmt.Sprintf("invalid event: %s %s", err.Field, err.Reason)
}

package engine

// ValidationError is a local, recoverable input failure. Message is meant to
// be shown to the user as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

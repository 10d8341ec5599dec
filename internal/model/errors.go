package model

// ValidationError is a rejected request whose Message is safe to show the
// caller as-is.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid returns a *ValidationError carrying msg.
func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}

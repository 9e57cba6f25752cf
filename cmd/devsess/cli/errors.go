package cli

// SilentError wraps an error whose message was already presented to the user.
// main checks for it to avoid printing the same failure twice.
type SilentError struct {
	err error
}

// NewSilentError marks err as already-reported.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }

func (e *SilentError) Unwrap() error { return e.err }

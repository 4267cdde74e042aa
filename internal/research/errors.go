package research

// Error wraps an underlying failure with a Retryable flag: transient
// upstream failures (search, planner) are retryable up to
// maxFailedAttempts; fatal failures (synthesizer) are not.
type Error struct {
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) *Error {
	return &Error{Err: err, Retryable: true}
}

func NewFatalError(err error) *Error {
	return &Error{Err: err, Retryable: false}
}

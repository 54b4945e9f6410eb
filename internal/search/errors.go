package search

import "errors"

// Done is returned by Next once the search is exhausted. It is a terminal
// state, not a failure.
var Done = errors.New("no more repositories")

// ErrPageShrunk is returned by Page.Get when the result set shrank between
// requests and index i no longer exists. The cursor treats the page as
// exhausted.
var ErrPageShrunk = errors.New("search results shrank")

// Kind classifies errors from a Searcher.
type Kind int

const (
	// KindFatal errors end enumeration for the caller.
	KindFatal Kind = iota
	// KindRetryable errors are transient; the same request is retried later.
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Error carries a Kind alongside the underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRetryable, Err: err}
}

// Fatal marks err as non-transient.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFatal, Err: err}
}

// KindOf returns the kind of err. Errors without a kind are fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindRetryable
}

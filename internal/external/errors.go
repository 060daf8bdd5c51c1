package external

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork = errors.New("network error")
	ErrParse   = errors.New("payload shape mismatch")
	ErrNoData  = errors.New("empty option chain")
)

// FetchError tags a provider failure with its source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(source string, kind error, format string, args ...any) *FetchError {
	return &FetchError{Source: source, Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}

package lookup

import "fmt"

// Error is an external lookup failure. The feature pipeline records it as the
// reason for a default value and never returns it to callers.
type Error struct {
	Source string
	Host   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s lookup for %s: %v", e.Source, e.Host, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(source, host string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Source: source, Host: host, Err: err}
}

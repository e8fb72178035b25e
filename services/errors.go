package services

import (
	"fmt"
)

// SourceFetchError wraps a failure of one source. It never aborts a run.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ClassificationParseError means the scoring backend returned something other than the expected JSON.
type ClassificationParseError struct {
	Raw string
	Err error
}

func (e *ClassificationParseError) Error() string {
	return fmt.Sprintf("unparseable classification: %v", e.Err)
}

func (e *ClassificationParseError) Unwrap() error { return e.Err }

// DomainMismatchError means a link resolved outside its allow-listed domain.
type DomainMismatchError struct {
	URL     string
	Allowed string
}

func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("%s is outside allowed domain %s", e.URL, e.Allowed)
}

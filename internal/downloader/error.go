package downloader

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// SourceFetchError is returned by [Downloader.Download] when the root source
// itself cannot be retrieved.
type SourceFetchError struct {
	// Err is the underlying cause.
	Err error

	// Source is the source URL or path.
	Source string

	// StatusCode is the HTTP status, if any.  Zero for non-HTTP failures.
	StatusCode int
}

// type check
var _ error = (*SourceFetchError)(nil)

// Error implements the error interface for *SourceFetchError.
func (err *SourceFetchError) Error() (msg string) {
	if err.StatusCode != 0 {
		return fmt.Sprintf("fetching %q: status %d: %s", err.Source, err.StatusCode, err.Err)
	}

	return fmt.Sprintf("fetching %q: %s", err.Source, err.Err)
}

// type check
var _ errors.Wrapper = (*SourceFetchError)(nil)

// Unwrap implements the [errors.Wrapper] interface for *SourceFetchError.
func (err *SourceFetchError) Unwrap() (unwrapped error) { return err.Err }

// DirectiveSyntaxError is returned by [Downloader.Download] when the
// preprocessor directives of a source are malformed.
type DirectiveSyntaxError struct {
	// Source is the source containing the malformed directive.
	Source string

	// Message describes the problem.
	Message string

	// Line is the 1-based line number of the directive.
	Line int
}

// type check
var _ error = (*DirectiveSyntaxError)(nil)

// Error implements the error interface for *DirectiveSyntaxError.
func (err *DirectiveSyntaxError) Error() (msg string) {
	return fmt.Sprintf("preprocessing %q: line %d: %s", err.Source, err.Line, err.Message)
}

// newSyntaxError is a shortcut constructor for *DirectiveSyntaxError.
func newSyntaxError(src string, line int, msg string) (err *DirectiveSyntaxError) {
	return &DirectiveSyntaxError{
		Source:  src,
		Message: msg,
		Line:    line,
	}
}

package compiler

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/HostlistCompiler/internal/pipeline"
)

// ConfigurationError is returned for an invalid configuration document.  It
// carries every problem found, not only the first one.
type ConfigurationError struct {
	// Errs are the individual problems, in document order.
	Errs []string
}

// type check
var _ error = (*ConfigurationError)(nil)

// Error implements the error interface for *ConfigurationError.
func (err *ConfigurationError) Error() (msg string) {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(err.Errs, "; "))
}

// ValidateConfiguration checks conf and returns a *[ConfigurationError]
// listing every problem, or nil when conf is valid.  conf may be nil.
func ValidateConfiguration(conf *Configuration) (err error) {
	if conf == nil {
		return &ConfigurationError{Errs: []string{"no configuration"}}
	}

	var errs []string
	if conf.Name == "" {
		errs = append(errs, "name: cannot be empty")
	}

	if len(conf.Sources) == 0 {
		errs = append(errs, "sources: cannot be empty")
	}

	errs = appendTransformErrs(errs, "transformations", conf.Transformations)
	errs = appendPatternErrs(errs, "exclusions", conf.Exclusions)
	errs = appendPatternErrs(errs, "inclusions", conf.Inclusions)

	for i, src := range conf.Sources {
		errs = appendSourceErrs(errs, i, src)
	}

	if len(errs) > 0 {
		return &ConfigurationError{Errs: errs}
	}

	return nil
}

// appendSourceErrs validates one source entry.
func appendSourceErrs(errs []string, i int, src *SourceConfig) (res []string) {
	prefix := fmt.Sprintf("sources at index %d", i)
	if src == nil {
		return append(errs, prefix+": cannot be null")
	}

	if src.Source == "" {
		errs = append(errs, prefix+": source: cannot be empty")
	}

	switch src.Type {
	case "", SourceTypeAdblock, SourceTypeHosts:
		// Valid.
	default:
		errs = append(errs, fmt.Sprintf("%s: type: unknown value %q", prefix, src.Type))
	}

	errs = appendTransformErrs(errs, prefix+": transformations", src.Transformations)
	errs = appendPatternErrs(errs, prefix+": exclusions", src.Exclusions)
	errs = appendPatternErrs(errs, prefix+": inclusions", src.Inclusions)

	return errs
}

// appendTransformErrs validates a transformation list.
func appendTransformErrs(
	errs []string,
	field string,
	transforms []pipeline.Transform,
) (res []string) {
	for _, t := range transforms {
		if !pipeline.IsKnown(t) {
			errs = append(errs, fmt.Sprintf("%s: unknown transformation %q", field, t))
		}
	}

	return errs
}

// appendPatternErrs validates inline include/exclude patterns.
func appendPatternErrs(errs []string, field string, patterns []string) (res []string) {
	for _, s := range patterns {
		_, err := ParsePattern(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", field, err))
		}
	}

	return errs
}

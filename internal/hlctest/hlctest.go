// Package hlctest contains simple mocks for common interfaces and other test
// utilities.
package hlctest

import (
	"context"

	"github.com/AdguardTeam/HostlistCompiler/internal/cachedl"
	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
)

// type check
var _ errcoll.Interface = (*ErrorCollector)(nil)

// ErrorCollector is an errcoll.Interface for tests.
type ErrorCollector struct {
	OnCollect func(ctx context.Context, err error)
}

// NewErrorCollector returns a new *ErrorCollector that ignores all errors.
func NewErrorCollector() (c *ErrorCollector) {
	return &ErrorCollector{
		OnCollect: func(_ context.Context, _ error) {},
	}
}

// Collect implements the errcoll.Interface interface for *ErrorCollector.
func (c *ErrorCollector) Collect(ctx context.Context, err error) {
	c.OnCollect(ctx, err)
}

// type check
var _ cachedl.Fetcher = (*Fetcher)(nil)

// Fetcher is a cachedl.Fetcher for tests.
type Fetcher struct {
	OnDownload func(ctx context.Context, src string) (lines []string, err error)
}

// Download implements the cachedl.Fetcher interface for *Fetcher.
func (f *Fetcher) Download(ctx context.Context, src string) (lines []string, err error) {
	return f.OnDownload(ctx, src)
}

package kvstore

import (
	"slices"
	"strings"
)

// FilterSorted sorts entries by their flattened key and applies the Start,
// End, Reverse, and Limit options.  It is a helper for backends that collect
// candidate entries in arbitrary order.  opts must not be nil.
func FilterSorted(entries []*Entry, opts *ListOptions) (res []*Entry) {
	res = make([]*Entry, 0, len(entries))
	for _, e := range entries {
		flat := e.Key.Join()
		if opts.Start != "" && flat < opts.Start {
			continue
		}

		if opts.End != "" && flat >= opts.End {
			continue
		}

		res = append(res, e)
	}

	slices.SortFunc(res, func(a, b *Entry) (cmp int) {
		return strings.Compare(a.Key.Join(), b.Key.Join())
	})

	if opts.Reverse {
		slices.Reverse(res)
	}

	if opts.Limit > 0 && len(res) > opts.Limit {
		res = res[:opts.Limit]
	}

	return res
}

package downloader

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/HostlistCompiler/internal/rules"
	"github.com/AdguardTeam/golibs/container"
)

// condBlock is the state of one open "!#if" block.
type condBlock struct {
	// keep is true when the current branch of the block keeps lines.
	keep bool

	// taken is true when some branch of the block has already kept lines.
	// Used to reject the else-branch after a true condition.
	taken bool

	// elseSeen is true after the block's "!#else".
	elseSeen bool
}

// preprocess expands the preprocessor directives in lines.  src is the
// enclosing source; ancestors is the set of sources on the current include
// path, including src itself; depth is the current include depth.
func (d *Downloader) preprocess(
	ctx context.Context,
	src string,
	lines []string,
	ancestors *container.MapSet[string],
	depth int,
) (out []string, err error) {
	out = make([]string, 0, len(lines))

	var blocks []*condBlock
	for i, line := range lines {
		r := rules.Parse(line)
		dir, ok := r.(*rules.Directive)
		if !ok {
			if keeping(blocks) {
				out = append(out, line)
			}

			continue
		}

		switch dir.Kind {
		case rules.DirectiveIf:
			if dir.Arg == "" {
				return nil, newSyntaxError(src, i+1, "if directive without expression")
			}

			cond := keeping(blocks) && d.eval.Eval(dir.Arg)
			blocks = append(blocks, &condBlock{
				keep:  cond,
				taken: cond,
			})
		case rules.DirectiveElse:
			if len(blocks) == 0 {
				return nil, newSyntaxError(src, i+1, "else directive without matching if")
			}

			b := blocks[len(blocks)-1]
			if b.elseSeen {
				return nil, newSyntaxError(src, i+1, "multiple else directives in one block")
			}

			b.elseSeen = true
			b.keep = !b.taken && keeping(blocks[:len(blocks)-1])
		case rules.DirectiveEndIf:
			if len(blocks) == 0 {
				return nil, newSyntaxError(src, i+1, "endif directive without matching if")
			}

			blocks = blocks[:len(blocks)-1]
		case rules.DirectiveInclude:
			if !keeping(blocks) {
				continue
			}

			if dir.Arg == "" {
				return nil, newSyntaxError(src, i+1, "include directive without target")
			}

			var included []string
			included, err = d.include(ctx, src, dir.Arg, ancestors, depth)
			if err != nil {
				return nil, err
			}

			out = append(out, included...)
		}
	}

	if len(blocks) != 0 {
		return nil, newSyntaxError(src, len(lines), "unbalanced if directive")
	}

	return out, nil
}

// keeping returns true when every open block keeps lines.
func keeping(blocks []*condBlock) (ok bool) {
	for _, b := range blocks {
		if !b.keep {
			return false
		}
	}

	return true
}

// include fetches and preprocesses one include target.  Cycles, depth
// overruns, and retrieval failures are downgraded to diagnostics and yield
// an empty block; directive syntax errors inside the included file
// propagate.
func (d *Downloader) include(
	ctx context.Context,
	src string,
	target string,
	ancestors *container.MapSet[string],
	depth int,
) (lines []string, err error) {
	resolved := resolveInclude(src, target)

	if ancestors.Has(resolved) {
		d.diagnostic(ctx, src, fmt.Sprintf("include cycle: %q is already being included", resolved))

		return nil, nil
	}

	if depth+1 > d.maxDepth {
		d.diagnostic(ctx, src, fmt.Sprintf("include depth exceeded at %q", resolved))

		return nil, nil
	}

	content, err := d.fetch(ctx, resolved)
	if err != nil {
		d.diagnostic(ctx, src, fmt.Sprintf("include missing: %s", err))

		return nil, nil
	}

	ancestors.Add(resolved)
	defer ancestors.Delete(resolved)

	return d.preprocess(ctx, resolved, splitLines(content), ancestors, depth+1)
}

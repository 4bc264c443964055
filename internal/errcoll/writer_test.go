package errcoll_test

import (
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

func TestWriterErrorCollector(t *testing.T) {
	sb := &strings.Builder{}
	coll := errcoll.NewWriterErrorCollector(sb)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	coll.Collect(ctx, errors.Error("test error"))

	got := sb.String()
	assert.Contains(t, got, "caught error: test error")
	assert.Contains(t, got, "writer_test.go")
}

package websvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/hlchttp"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// maxReqBodySize is the bound on request body sizes.
const maxReqBodySize = 4 * 1024 * 1024

// statusRecorder wraps a response writer to capture the status code for
// metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

// WriteHeader implements the http.ResponseWriter interface for
// *statusRecorder.
func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// type check
var _ http.Flusher = (*statusRecorder)(nil)

// Flush implements the http.Flusher interface for *statusRecorder.  Streaming
// handlers rely on it.
func (r *statusRecorder) Flush() {
	if fl, ok := r.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

// middleware wraps h with the common response headers, logging, and request
// metrics.  pattern is the route pattern used as the metrics label.
func (svc *Service) middleware(pattern string, h http.HandlerFunc) (wrapped http.Handler) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(httphdr.Server, hlchttp.UserAgent())

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()

		h(rec, r)

		ctx := r.Context()
		svc.metrics.ObserveRequest(ctx, pattern, rec.code, time.Since(start))
		svc.logger.DebugContext(
			ctx,
			"request served",
			"method", r.Method,
			"path", r.URL.Path,
			"code", rec.code,
		)
	})
}

// writeJSON writes v as the JSON response body.
func (svc *Service) writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set(httphdr.ContentType, hlchttp.HdrValApplicationJSON)
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		svc.logger.DebugContext(ctx, "writing response", slogutil.KeyError, err)
	}
}

// errorResp is the JSON body of error responses.
type errorResp struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func (svc *Service) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	svc.writeJSON(ctx, w, code, &errorResp{Error: msg})
}

// readJSON decodes the request body into v.  If it fails, it writes a 400
// response and returns false.
func (svc *Service) readJSON(w http.ResponseWriter, r *http.Request, v any) (ok bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReqBodySize))
	if err == nil {
		err = json.Unmarshal(b, v)
	}

	if err != nil {
		svc.writeError(r.Context(), w, http.StatusBadRequest, fmt.Sprintf("bad request: %s", err))

		return false
	}

	return true
}

// handleCompile serves POST /v1/compile.  With "Accept: text/event-stream"
// the compilation progress is streamed as server-sent events; otherwise the
// result is returned as one JSON body.
func (svc *Service) handleCompile(w http.ResponseWriter, r *http.Request) {
	req := &compiler.Request{}
	if !svc.readJSON(w, r, req) {
		return
	}

	if r.Header.Get(httphdr.Accept) == hlchttp.HdrValTextEventStream {
		svc.serveCompileSSE(w, r, req)

		return
	}

	ctx := r.Context()
	res, err := svc.comp.Compile(ctx, req, events.Empty{})
	if err != nil {
		svc.writeCompileError(ctx, w, err)

		return
	}

	svc.rules.Collect(ctx, res.Rules)
	svc.writeJSON(ctx, w, http.StatusOK, res)
}

// writeCompileError maps a compilation error to an HTTP response.
func (svc *Service) writeCompileError(ctx context.Context, w http.ResponseWriter, err error) {
	var confErr *compiler.ConfigurationError
	switch {
	case errors.As(err, &confErr):
		svc.writeError(ctx, w, http.StatusBadRequest, confErr.Error())
	case errors.Is(err, compiler.ErrCancelled):
		svc.writeError(ctx, w, http.StatusRequestTimeout, err.Error())
	default:
		svc.errColl.Collect(ctx, fmt.Errorf("websvc: compiling: %w", err))
		svc.writeError(ctx, w, http.StatusInternalServerError, err.Error())
	}
}

// batchReq is the JSON body of POST /v1/batch.
type batchReq struct {
	Requests []*compiler.Request `json:"requests"`
}

// batchItem is one per-request result in a batch response.
type batchItem struct {
	Result *compiler.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Ok     bool             `json:"ok"`
}

// batchResp is the JSON body of a batch response.
type batchResp struct {
	Results []*batchItem `json:"results"`
}

// handleBatch serves POST /v1/batch.  Requests are compiled in order, and
// per-item failures do not fail the batch.
func (svc *Service) handleBatch(w http.ResponseWriter, r *http.Request) {
	req := &batchReq{}
	if !svc.readJSON(w, r, req) {
		return
	}

	ctx := r.Context()

	if n := len(req.Requests); n == 0 || n > svc.batchSizeMax {
		svc.writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf(
			"batch size must be between 1 and %d, got %d",
			svc.batchSizeMax,
			n,
		))

		return
	}

	resp := &batchResp{}
	for _, item := range req.Requests {
		res, err := svc.comp.Compile(ctx, item, events.Empty{})
		if err != nil {
			resp.Results = append(resp.Results, &batchItem{Error: err.Error()})

			continue
		}

		svc.rules.Collect(ctx, res.Rules)
		resp.Results = append(resp.Results, &batchItem{Result: res, Ok: true})
	}

	svc.writeJSON(ctx, w, http.StatusOK, resp)
}

// handleHealthcheck serves GET /v1/healthcheck.
func (svc *Service) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(httphdr.ContentType, hlchttp.HdrValTextPlain)

	_, err := io.WriteString(w, "OK\n")
	if err != nil {
		svc.logger.DebugContext(r.Context(), "writing health check", slogutil.KeyError, err)
	}
}

// handleRobots serves GET /robots.txt with a disallow-all response.
func (svc *Service) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(httphdr.ContentType, hlchttp.HdrValTextPlain)

	_, err := io.WriteString(w, hlchttp.RobotsDisallowAll)
	if err != nil {
		svc.logger.DebugContext(r.Context(), "writing robots.txt", slogutil.KeyError, err)
	}
}

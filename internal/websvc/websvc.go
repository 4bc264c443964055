// Package websvc contains the HTTP API of the service.  It is thin glue over
// the compilation orchestrator, the job queue, and the streaming session
// manager.
package websvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/jobqueue"
	"github.com/AdguardTeam/HostlistCompiler/internal/rulestat"
	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
)

// Default tuning values for [Service].
const (
	DefaultBatchSizeMax = 10
	DefaultTimeout      = 60 * time.Second
)

// Service is the HTTP API service.
type Service struct {
	logger   *slog.Logger
	errColl  errcoll.Interface
	comp     session.Compiler
	jobs     *jobqueue.Queue
	sessions *session.Manager
	rules    rulestat.Interface
	metrics  Metrics
	srv      *http.Server

	batchSizeMax int
	timeout      time.Duration
}

// Config is the configuration structure for [Service].
type Config struct {
	// Logger is used for logging the operation of the service.  It must not
	// be nil.
	Logger *slog.Logger

	// ErrColl collects handler errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Compiler runs synchronous and streamed compilations.  It must not be
	// nil.
	Compiler session.Compiler

	// Jobs is the asynchronous submission surface.  It must not be nil.
	Jobs *jobqueue.Queue

	// Sessions is the streaming session manager.  It must not be nil.
	Sessions *session.Manager

	// RuleStat collects compiled-rule statistics.  If nil, [rulestat.Empty]
	// is used.
	RuleStat rulestat.Interface

	// Metrics is used for the collection of the request statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// Addr is the address to listen on.
	Addr string

	// Timeout bounds reading request headers and non-streaming responses.
	// Zero means [DefaultTimeout].
	Timeout time.Duration

	// BatchSizeMax bounds the number of requests in one batch.  Zero means
	// [DefaultBatchSizeMax].
	BatchSizeMax int
}

// New returns a new web service.  c must not be nil.
func New(c *Config) (svc *Service) {
	svc = &Service{
		logger:       c.Logger,
		errColl:      c.ErrColl,
		comp:         c.Compiler,
		jobs:         c.Jobs,
		sessions:     c.Sessions,
		rules:        c.RuleStat,
		metrics:      c.Metrics,
		batchSizeMax: c.BatchSizeMax,
		timeout:      c.Timeout,
	}

	if svc.rules == nil {
		svc.rules = rulestat.Empty{}
	}

	if svc.metrics == nil {
		svc.metrics = EmptyMetrics{}
	}

	if svc.batchSizeMax == 0 {
		svc.batchSizeMax = DefaultBatchSizeMax
	}

	if svc.timeout == 0 {
		svc.timeout = DefaultTimeout
	}

	// Streaming endpoints hold their responses open, so only the header read
	// is bounded here.
	svc.srv = &http.Server{
		Addr:              c.Addr,
		Handler:           svc.mux(),
		ErrorLog:          slog.NewLogLogger(c.Logger.Handler(), slog.LevelDebug),
		ReadHeaderTimeout: svc.timeout,
	}

	return svc
}

// mux routes the API endpoints.
func (svc *Service) mux() (mux *http.ServeMux) {
	mux = http.NewServeMux()

	mux.Handle("POST /v1/compile", svc.middleware("/v1/compile", svc.handleCompile))
	mux.Handle("POST /v1/batch", svc.middleware("/v1/batch", svc.handleBatch))
	mux.Handle("POST /v1/jobs", svc.middleware("/v1/jobs", svc.handleJobSubmit))
	mux.Handle("GET /v1/jobs/{id}", svc.middleware("/v1/jobs/{id}", svc.handleJobPoll))
	mux.Handle("GET /v1/jobs", svc.middleware("/v1/jobs", svc.handleJobStats))
	mux.Handle("POST /v1/session", svc.middleware("/v1/session", svc.handleSession))
	mux.Handle("GET /v1/healthcheck", svc.middleware("/v1/healthcheck", svc.handleHealthcheck))
	mux.Handle("GET /robots.txt", svc.middleware("/robots.txt", svc.handleRobots))

	return mux
}

// type check
var _ http.Handler = (*Service)(nil)

// ServeHTTP implements the http.Handler interface for *Service.
func (svc *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	svc.srv.Handler.ServeHTTP(w, r)
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It starts
// serving but does not wait for the listener to actually go online.
func (svc *Service) Start(ctx context.Context) (err error) {
	go func() {
		svc.logger.InfoContext(ctx, "listening", "addr", svc.srv.Addr)

		srvErr := svc.srv.ListenAndServe()
		if !errors.Is(srvErr, http.ErrServerClosed) {
			svc.errColl.Collect(ctx, fmt.Errorf("websvc: serving: %w", srvErr))
		}
	}()

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	err = svc.srv.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("websvc: shutdown: %w", err)
	}

	return nil
}

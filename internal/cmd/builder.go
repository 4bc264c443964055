package cmd

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/debugsvc"
	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/jobqueue"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/boltkv"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/memkv"
	"github.com/AdguardTeam/HostlistCompiler/internal/kvstore/rediskv"
	"github.com/AdguardTeam/HostlistCompiler/internal/metrics"
	"github.com/AdguardTeam/HostlistCompiler/internal/rulestat"
	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/HostlistCompiler/internal/websvc"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout is the default shutdown timeout for all services.
const shutdownTimeout = 10 * time.Second

// Redis pool tuning.
const (
	redisMaxConnLifetime = 1 * time.Hour
	redisIdleTimeout     = 5 * time.Minute
	redisMaxActive       = 10
	redisMaxIdle         = 3
)

// builder contains the logic of configuring and combining together the
// service entities.
//
// NOTE:  Keep method definitions in the rough order in which they are
// intended to be called.
type builder struct {
	// The fields below are initialized immediately on construction.  Keep
	// them sorted.

	baseLogger *slog.Logger
	conf       *configuration
	env        *environment
	errColl    errcoll.Interface
	logger     *slog.Logger
	promReg    *prometheus.Registry
	sigHdlr    *service.SignalHandler

	// The fields below are initialized later by calling the builder's
	// methods.  Keep them sorted.

	comp     *compiler.Compiler
	jobs     *jobqueue.Queue
	ruleStat *rulestat.Counter
	sessions *session.Manager
	store    kvstore.Interface
	webSvc   *websvc.Service
}

// builderConfig contains the initial configuration for the builder.
type builderConfig struct {
	// envs contains the environment variables for the builder.  It must be
	// valid and must not be nil.
	envs *environment

	// conf contains the configuration from the configuration file for the
	// builder.  It must be valid and must not be nil.
	conf *configuration

	// baseLogger is used to create loggers for other entities.  It should
	// not have a prefix and must not be nil.
	baseLogger *slog.Logger

	// errColl is used to collect errors in the entities.  It must not be
	// nil.
	errColl errcoll.Interface
}

// newBuilder returns a new properly initialized builder.  c must not be nil.
func newBuilder(c *builderConfig) (b *builder) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &builder{
		baseLogger: c.baseLogger,
		conf:       c.conf,
		env:        c.envs,
		errColl:    c.errColl,
		logger:     c.baseLogger.With(slogutil.KeyPrefix, "builder"),
		promReg:    promReg,
		sigHdlr: service.NewSignalHandler(&service.SignalHandlerConfig{
			Logger:          c.baseLogger.With(slogutil.KeyPrefix, service.SignalHandlerPrefix),
			ShutdownTimeout: shutdownTimeout,
		}),
	}
}

// closeService adapts an [io.Closer] to the [service.Interface] interface so
// that it can be closed by the signal handler.
type closeService struct {
	closer io.Closer
}

// type check
var _ service.Interface = (*closeService)(nil)

// Start implements the [service.Interface] interface for *closeService.  err
// is always nil.
func (s *closeService) Start(_ context.Context) (err error) { return nil }

// Shutdown implements the [service.Interface] interface for *closeService.
func (s *closeService) Shutdown(_ context.Context) (err error) {
	return s.closer.Close()
}

// initStorage initializes the key-value storage backend selected by the
// STORAGE_TYPE environment variable.
func (b *builder) initStorage(ctx context.Context) (err error) {
	switch typ := b.env.StorageType; typ {
	case storageTypeMemory:
		b.store = memkv.New(nil)
	case storageTypeBolt:
		var kv *boltkv.KV
		kv, err = boltkv.New(&boltkv.Config{
			Path: b.env.BoltDBPath,
		})
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}

		b.store = kv
		b.sigHdlr.AddService(&closeService{closer: kv})
	case storageTypeRedis:
		b.store, err = b.newRedisStore(ctx)
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}
	}

	b.logger.DebugContext(ctx, "initialized storage", "type", b.env.StorageType)

	return nil
}

// newRedisStore returns a Redis-backed storage built from environment.
func (b *builder) newRedisStore(_ context.Context) (kv *rediskv.KV, err error) {
	dialer, err := redisutil.NewDefaultDialer(&redisutil.DefaultDialerConfig{
		Addr: &netutil.HostPort{
			Host: b.env.RedisHost,
			Port: b.env.RedisPort,
		},
	})
	if err != nil {
		return nil, err
	}

	pool, err := redisutil.NewDefaultPool(&redisutil.DefaultPoolConfig{
		Logger:          b.baseLogger.With(slogutil.KeyPrefix, "redis_pool"),
		Dialer:          dialer,
		MaxConnLifetime: redisMaxConnLifetime,
		IdleTimeout:     redisIdleTimeout,
		MaxActive:       redisMaxActive,
		MaxIdle:         redisMaxIdle,
		Wait:            true,
	})
	if err != nil {
		return nil, err
	}

	return rediskv.New(&rediskv.Config{
		Pool:   pool,
		Prefix: b.env.RedisKeyPrefix,
	}), nil
}

// initCompiler initializes the compilation orchestrator.
//
// [builder.initStorage] must be called before this method.
func (b *builder) initCompiler(ctx context.Context) (err error) {
	mtrc, err := metrics.NewCompiler(metrics.Namespace, b.promReg)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.comp = compiler.New(b.conf.Compiler.toInternal(
		b.store,
		b.errColl,
		b.baseLogger,
		mtrc,
	))

	b.logger.DebugContext(ctx, "initialized compiler")

	return nil
}

// initRuleStat initializes the rule statistics counter.
func (b *builder) initRuleStat(ctx context.Context) (err error) {
	mtrc, err := metrics.NewRuleStat(metrics.Namespace, b.promReg)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.ruleStat = rulestat.New(&rulestat.Config{
		Metrics: mtrc,
	})

	b.logger.DebugContext(ctx, "initialized rulestat")

	return nil
}

// initJobQueue initializes and starts the asynchronous job queue.
//
// The following methods must be called before this one:
//   - [builder.initCompiler]
//   - [builder.initRuleStat]
func (b *builder) initJobQueue(ctx context.Context) (err error) {
	mtrc, err := metrics.NewJobQueue(metrics.Namespace, b.promReg)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.jobs = jobqueue.New(b.conf.JobQueue.toInternal(
		websvc.NewCompileJobHandler(b.comp, b.ruleStat),
		b.baseLogger,
		mtrc,
	))

	err = b.jobs.Start(ctx)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.sigHdlr.AddService(b.jobs)

	b.logger.DebugContext(ctx, "initialized job queue")

	return nil
}

// initSessions initializes the streaming session manager.
//
// [builder.initCompiler] must be called before this method.
func (b *builder) initSessions(ctx context.Context) (err error) {
	b.sessions = session.New(b.conf.Session.toInternal(b.comp, b.baseLogger))

	b.logger.DebugContext(ctx, "initialized sessions")

	return nil
}

// initWeb initializes and starts the HTTP API.
//
// The following methods must be called before this one:
//   - [builder.initCompiler]
//   - [builder.initJobQueue]
//   - [builder.initRuleStat]
//   - [builder.initSessions]
func (b *builder) initWeb(ctx context.Context) (err error) {
	mtrc, err := metrics.NewWebSvc(metrics.Namespace, b.promReg)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.webSvc = websvc.New(b.conf.Web.toInternal(
		b.env,
		b.comp,
		b.jobs,
		b.sessions,
		b.ruleStat,
		b.errColl,
		b.baseLogger,
		mtrc,
	))

	err = b.webSvc.Start(ctx)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.sigHdlr.AddService(b.webSvc)

	b.logger.DebugContext(ctx, "initialized web")

	return nil
}

// mustInitDebugSvc initializes, starts, and registers the debug service.  The
// debug HTTP service is considered critical, so it panics instead of
// returning an error.
func (b *builder) mustInitDebugSvc(ctx context.Context) {
	debugSvc := debugsvc.New(b.env.debugConf(b.baseLogger, b.promReg))

	// The debug HTTP service is considered critical, so its Start method
	// panics instead of returning an error.
	_ = debugSvc.Start(context.WithoutCancel(ctx))

	b.sigHdlr.AddService(debugSvc)

	b.logger.DebugContext(ctx, "initialized debug")
}

// handleSignals blocks and processes signals from the OS.  status is
// [osutil.ExitCodeSuccess] on success and [osutil.ExitCodeFailure] on error.
//
// handleSignals must not be called concurrently with any other methods.
func (b *builder) handleSignals(ctx context.Context) (code osutil.ExitCode) {
	return b.sigHdlr.Handle(ctx)
}

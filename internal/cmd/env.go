package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/AdguardTeam/HostlistCompiler/internal/debugsvc"
	"github.com/AdguardTeam/HostlistCompiler/internal/errcoll"
	"github.com/AdguardTeam/HostlistCompiler/internal/version"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/caarlos0/env/v7"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Storage types that can be set in the STORAGE_TYPE environment variable.
const (
	storageTypeMemory = "memory"
	storageTypeBolt   = "bolt"
	storageTypeRedis  = "redis"
)

// environment represents the configuration that is kept in the environment.
type environment struct {
	BoltDBPath     string `env:"BOLT_DB_PATH" envDefault:"./hostlistcompiler.db"`
	ConfPath       string `env:"CONFIG_PATH" envDefault:"./config.yaml"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	RedisHost      string `env:"REDIS_HOST"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"hlc"`
	SentryDSN      string `env:"SENTRY_DSN" envDefault:"stderr"`
	StorageType    string `env:"STORAGE_TYPE" envDefault:"memory"`

	DebugListenAddr net.IP `env:"DEBUG_LISTEN_ADDR" envDefault:"127.0.0.1"`
	ListenAddr      net.IP `env:"LISTEN_ADDR" envDefault:"0.0.0.0"`

	DebugListenPort uint16 `env:"DEBUG_LISTEN_PORT" envDefault:"8181"`
	ListenPort      uint16 `env:"LISTEN_PORT" envDefault:"8080"`
	RedisPort       uint16 `env:"REDIS_PORT" envDefault:"6379"`

	Verbosity uint8 `env:"VERBOSE" envDefault:"0"`

	LogTimestamp strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
}

// parseEnvironment reads the configuration.
func parseEnvironment() (envs *environment, err error) {
	envs = &environment{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// type check
var _ validate.Interface = (*environment)(nil)

// Validate implements the [validate.Interface] interface for *environment.
func (envs *environment) Validate() (err error) {
	var errs []error

	_, err = slogutil.NewFormat(envs.LogFormat)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: %w", err))
	}

	_, err = slogutil.VerbosityToLevel(envs.Verbosity)
	if err != nil {
		errs = append(errs, fmt.Errorf("VERBOSE: %w", err))
	}

	errs = envs.validateStorage(errs)

	return errors.Join(errs...)
}

// validateStorage appends validation errors to the given errs if the storage
// environment variables contain errors.
func (envs *environment) validateStorage(errs []error) (res []error) {
	res = errs

	switch typ := envs.StorageType; typ {
	case storageTypeMemory:
		// Go on.
	case storageTypeBolt:
		res = append(res, validate.NotEmpty("env BOLT_DB_PATH", envs.BoltDBPath))
	case storageTypeRedis:
		res = append(res,
			validate.NotEmpty("env REDIS_HOST", envs.RedisHost),
			validate.NotEmpty("env REDIS_KEY_PREFIX", envs.RedisKeyPrefix),
		)
	default:
		res = append(res, fmt.Errorf(
			"env STORAGE_TYPE: %w: %q",
			errors.ErrBadEnumValue,
			typ,
		))
	}

	return res
}

// buildErrColl builds and returns an error collector from environment.
func (envs *environment) buildErrColl() (errColl errcoll.Interface, err error) {
	dsn := envs.SentryDSN
	if dsn == "stderr" {
		return errcoll.NewWriterErrorCollector(os.Stderr), nil
	}

	cli, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          version.Version(),
	})
	if err != nil {
		return nil, err
	}

	return errcoll.NewSentryErrorCollector(cli), nil
}

// debugConf returns a debug HTTP service configuration from environment.
// logger and gatherer must not be nil.
func (envs *environment) debugConf(
	logger *slog.Logger,
	gatherer prometheus.Gatherer,
) (conf *debugsvc.Config) {
	addr := netutil.JoinHostPort(envs.DebugListenAddr.String(), envs.DebugListenPort)

	return &debugsvc.Config{
		Logger:         logger.With(slogutil.KeyPrefix, "debugsvc"),
		Gatherer:       gatherer,
		APIAddr:        addr,
		PprofAddr:      addr,
		PrometheusAddr: addr,
	}
}

// strictBool is a type for booleans that are parsed from the environment more
// strictly than the usual bool.  It only accepts "0" and "1" as valid values.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		default:
			// Go on and return an error.
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"gopkg.in/yaml.v2"
)

// configuration represents the on-disk configuration of the service.  All
// tuning values are optional, zeroes mean the component defaults.
type configuration struct {
	// Compiler is the compilation orchestrator configuration.
	Compiler *compilerConfig `yaml:"compiler"`

	// Session is the streaming session configuration.
	Session *sessionConfig `yaml:"session"`

	// JobQueue is the asynchronous job queue configuration.
	JobQueue *jobQueueConfig `yaml:"job_queue"`

	// Web is the HTTP API configuration.
	Web *webConfig `yaml:"web"`
}

// type check
var _ validate.Interface = (*configuration)(nil)

// Validate implements the [validate.Interface] interface for *configuration.
func (c *configuration) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	// Keep this in the same order as the fields in the config.
	validators := container.KeyValues[string, validate.Interface]{{
		Key:   "compiler",
		Value: c.Compiler,
	}, {
		Key:   "session",
		Value: c.Session,
	}, {
		Key:   "job_queue",
		Value: c.JobQueue,
	}, {
		Key:   "web",
		Value: c.Web,
	}}

	var errs []error
	for _, kv := range validators {
		errs = validate.Append(errs, kv.Key, kv.Value)
	}

	return errors.Join(errs...)
}

// parseConfig reads the configuration.
func parseConfig(confPath string) (c *configuration, err error) {
	// #nosec G304 -- Trust the path to the configuration file that is given
	// from the environment.
	yamlFile, err := os.ReadFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	c = &configuration{}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return c, nil
}

// Package metrics contains definitions of the prometheus metrics that the
// service exports.
package metrics

import (
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the default namespace of the service's metrics.
const Namespace = "hlc"

// Constants with the subsystem names that we use in our prometheus metrics.
const (
	subsystemApplication = "app"
	subsystemCompiler    = "compiler"
	subsystemJobQueue    = "jobqueue"
	subsystemRuleStat    = "rulestat"
	subsystemWebSvc      = "websvc"
)

// SetUpGauge registers and sets the gauge signalling that the server has been
// started.
func SetUpGauge(
	reg prometheus.Registerer,
	version string,
	buildtime string,
	branch string,
	revision string,
	goversion string,
) (err error) {
	upGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "up",
		Namespace: Namespace,
		Subsystem: subsystemApplication,
		Help: `A metric with a constant '1' value labeled by version and ` +
			`goversion from which the program was built.`,
		ConstLabels: prometheus.Labels{
			"version":   version,
			"buildtime": buildtime,
			"branch":    branch,
			"revision":  revision,
			"goversion": goversion,
		},
	})

	err = reg.Register(upGauge)
	if err != nil {
		return fmt.Errorf("registering up gauge: %w", err)
	}

	upGauge.Set(1)

	return nil
}

// SetStatusGauge is a helper function that automatically checks if there's an
// error and sets the gauge to either 1 (success) or 0 (error).
func SetStatusGauge(gauge prometheus.Gauge, err error) {
	if err == nil {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}

// BoolString returns "1" if cond is true and "0" otherwise.
func BoolString(cond bool) (s string) {
	if cond {
		return "1"
	}

	return "0"
}

// register registers the named collectors in reg, combining the errors.
func register(
	reg prometheus.Registerer,
	collectors container.KeyValues[string, prometheus.Collector],
) (err error) {
	var errs []error
	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	return errors.Join(errs...)
}

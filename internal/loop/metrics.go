package loop

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "lpi"

// Metrics holds the Prometheus collectors of one loop. Each loop has its own
// registry so several loops (or tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	steps          prometheus.Counter
	coasts         prometheus.Counter
	skipped        prometheus.Counter
	sensorErrors   prometheus.Counter
	actuatorErrors prometheus.Counter

	output       prometheus.Gauge
	controlError prometheus.Gauge
	integral     prometheus.Gauge
	setpoint     prometheus.Gauge
	measurement  prometheus.Gauge
	disabled     prometheus.Gauge
}

func newMetrics(name string) *Metrics {
	labels := prometheus.Labels{"loop": name}
	counter := func(n, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        n,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(n, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        n,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		registry:       prometheus.NewRegistry(),
		ticks:          counter("ticks_total", "Control loop ticks, including skipped ones."),
		steps:          counter("steps_total", "Ticks that stepped the controller."),
		coasts:         counter("coasts_total", "Ticks spent coasting while the controller was disabled."),
		skipped:        counter("skipped_total", "Ticks skipped because the reading was not usable."),
		sensorErrors:   counter("sensor_errors_total", "Failed sensor reads."),
		actuatorErrors: counter("actuator_errors_total", "Failed actuator writes."),
		output:         gauge("output", "Most recent controller output."),
		controlError:   gauge("error", "Most recent setpoint minus measurement."),
		integral:       gauge("integral", "Controller integral accumulator."),
		setpoint:       gauge("setpoint", "Most recent setpoint."),
		measurement:    gauge("measurement", "Most recent measurement."),
		disabled:       gauge("disabled", "1 while the controller is disabled."),
	}
	m.registry.MustRegister(
		m.ticks, m.steps, m.coasts, m.skipped, m.sensorErrors, m.actuatorErrors,
		m.output, m.controlError, m.integral, m.setpoint, m.measurement, m.disabled,
	)
	return m
}

func (m *Metrics) observe(s Stats) {
	m.output.Set(s.LastOutput)
	m.controlError.Set(s.LastError)
	m.integral.Set(s.LastIntegral)
	m.setpoint.Set(s.LastSetpoint)
	m.measurement.Set(s.LastMeasured)
	if s.LastDisabled {
		m.disabled.Set(1)
	} else {
		m.disabled.Set(0)
	}
}

// Registry returns the registry holding the loop's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the loop's metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

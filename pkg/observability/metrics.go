package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values of wren_commands_total.
const (
	StatusOK          = "ok"
	StatusClientError = "client_error"
	StatusError       = "error"
)

// Metrics holds the engine collectors in a dedicated registry.
type Metrics struct {
	registry        *prometheus.Registry
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	appends         *prometheus.CounterVec
	generations     *prometheus.HistogramVec
	polls           prometheus.Counter
	feedEvents      prometheus.Counter
}

// NewMetrics registers the engine collectors plus the Go and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wren_commands_total",
				Help: "Total number of commands executed",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wren_command_duration_seconds",
				Help:    "Duration of command executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wren_log_appends_total",
				Help: "Total number of scene log entries committed",
			},
			[]string{"kind"},
		),
		generations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wren_generation_duration_seconds",
				Help:    "Duration of completion bridge calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wren_feed_polls_total",
			Help: "Total number of change-feed poll cycles",
		}),
		feedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wren_feed_events_total",
			Help: "Total number of change-feed events computed, heartbeats excluded",
		}),
	}
	m.registry.MustRegister(
		m.commands,
		m.commandDuration,
		m.appends,
		m.generations,
		m.polls,
		m.feedEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns the callbacks that feed the collectors.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnCommand: func(ctx context.Context, e *domain.CommandEvent) {
			m.commands.WithLabelValues(e.Command, status(e.Err)).Inc()
			m.commandDuration.WithLabelValues(e.Command).Observe(e.Duration.Seconds())
		},
		OnAppend: func(ctx context.Context, e *domain.AppendEvent) {
			kind := string(e.Entry.Kind)
			if kind == "" {
				kind = "chat"
			}
			m.appends.WithLabelValues(kind).Inc()
		},
		OnGenerate: func(ctx context.Context, e *domain.GenerateEvent) {
			outcome := "success"
			if e.IsError {
				outcome = "error"
			}
			m.generations.WithLabelValues(outcome).Observe(e.Duration.Seconds())
		},
		OnPoll: func(ctx context.Context, e *domain.PollEvent) {
			m.polls.Inc()
			m.feedEvents.Add(float64(e.Events))
		},
	}
}

func status(err error) string {
	if err == nil {
		return StatusOK
	}
	for _, target := range []error{
		domain.ErrSessionNotFound,
		domain.ErrAlreadyMember,
		domain.ErrNotAMember,
		domain.ErrUnauthorized,
		domain.ErrUnknownCommand,
		domain.ErrNotImplemented,
		domain.ErrValidation,
		domain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return StatusClientError
		}
	}
	return StatusError
}

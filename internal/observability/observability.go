package observability

import (
	"net/http"
	"time"

	"scamwatch/internal/config"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the bot's Prometheus collectors. Each instance registers on
// its own registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	commands           *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	reportsSubmitted   prometheus.Counter
	scanVerdicts       *prometheus.CounterVec
	confirmations      *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scamwatch_commands_total",
			Help: "Slash commands handled, by outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scamwatch_command_duration_seconds",
			Help:    "Time spent handling slash commands.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		reportsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scamwatch_reports_submitted_total",
			Help: "Reports persisted.",
		}),
		scanVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scamwatch_scan_verdicts_total",
			Help: "Malware scan verdicts per attachment.",
		}, []string{"verdict"}),
		confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scamwatch_confirmations_total",
			Help: "Confirmation prompts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		sideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scamwatch_side_effect_failures_total",
			Help: "Best-effort side effects that failed.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartCommand returns a func that records the command's outcome and
// duration when called.
func (m *Metrics) StartCommand(command string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	timer := prometheus.NewTimer(m.commandDuration.WithLabelValues(command))
	return func(outcome string) {
		timer.ObserveDuration()
		m.commands.WithLabelValues(command, outcome).Inc()
	}
}

func (m *Metrics) ReportSubmitted() {
	if m != nil {
		m.reportsSubmitted.Inc()
	}
}

func (m *Metrics) ScanVerdict(verdict string) {
	if m != nil {
		m.scanVerdicts.WithLabelValues(verdict).Inc()
	}
}

func (m *Metrics) Confirmation(flow, outcome string) {
	if m != nil {
		m.confirmations.WithLabelValues(flow, outcome).Inc()
	}
}

func (m *Metrics) SideEffectFailed(kind string) {
	if m != nil {
		m.sideEffectFailures.WithLabelValues(kind).Inc()
	}
}

// InitSentry configures the global Sentry hub. An empty DSN leaves Sentry
// disabled and is not an error.
func InitSentry(cfg config.SentryConfig, environment string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		Environment:      environment,
	})
	if err != nil {
		return false, errors.Wrap(err, "init sentry")
	}
	return true, nil
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError sends err to Sentry tagged with kind. It is a no-op when
// Sentry was never initialised.
func CaptureError(kind string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", kind)
		sentry.CaptureException(err)
	})
}

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics owns the bot's registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands       *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	moves          prometheus.Counter
	roundsClosed   prometheus.Counter
	forfeits       prometheus.Counter
	phaseConflicts prometheus.Counter
	egressFailures *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rps",
			Name:      "commands_total",
			Help:      "Chat commands handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rps",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a chat command.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rps",
			Name:      "moves_total",
			Help:      "Hands accepted from players.",
		}),
		roundsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rps",
			Name:      "rounds_closed_total",
			Help:      "Rounds closed and scored.",
		}),
		forfeits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rps",
			Name:      "forfeits_total",
			Help:      "Forfeit moves inserted at round close.",
		}),
		phaseConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rps",
			Name:      "phase_conflicts_total",
			Help:      "Guarded status updates that matched no row.",
		}),
		egressFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rps",
			Name:      "egress_failures_total",
			Help:      "Replies that could not be delivered, by transport.",
		}, []string{"transport"}),
	}
	reg.MustRegister(
		m.commands, m.commandLatency, m.moves, m.roundsClosed, m.forfeits, m.phaseConflicts, m.egressFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCommand(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandLatency.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) MoveAccepted() {
	if m != nil {
		m.moves.Inc()
	}
}

func (m *Metrics) RoundClosed(forfeits int) {
	if m == nil {
		return
	}
	m.roundsClosed.Inc()
	m.forfeits.Add(float64(forfeits))
}

func (m *Metrics) PhaseConflict() {
	if m != nil {
		m.phaseConflicts.Inc()
	}
}

func (m *Metrics) EgressFailed(transport string) {
	if m != nil {
		m.egressFailures.WithLabelValues(transport).Inc()
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &fasthttp.Server{
		Name:        "rps-bot",
		ReadTimeout: 5 * time.Second,
		Handler: func(rc *fasthttp.RequestCtx) {
			if string(rc.Path()) != "/metrics" {
				rc.Error("not found", fasthttp.StatusNotFound)
				return
			}
			metricsHandler(rc)
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.ShutdownWithContext(shutdownCtx)
	}()

	logger.Info("metrics_listening", zap.String("addr", addr))
	return srv.ListenAndServe(addr)
}

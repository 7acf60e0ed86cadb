package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

var (
	NameSpace = "deploytui"
	Subsystem = "validation"
)

// Recorder tracks validation runs in its own registry so several sessions
// (and tests) never collide on the default registerer.
type Recorder struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	lines    *prometheus.CounterVec
	duration *prometheus.SummaryVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(NameSpace, Subsystem, "runs_count"),
			Help: "How many validation runs finished, by classification",
		}, []string{"classification"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(NameSpace, Subsystem, "run_error_count"),
			Help: "How many validation runs could not produce a result, by error kind",
		}, []string{"kind"}),

		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prometheus.BuildFQName(NameSpace, Subsystem, "output_lines_count"),
			Help: "How many output lines were relayed, by stream",
		}, []string{"stream"}),

		duration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: prometheus.BuildFQName(NameSpace, Subsystem, "run_duration_seconds"),
			Help: "Time taken by validation runs",
		}, []string{"classification"}),
	}

	r.registry.MustRegister(r.runs, r.errors, r.lines, r.duration)

	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveLine(stream domain.Stream) {
	r.lines.WithLabelValues(string(stream)).Inc()
}

func (r *Recorder) ObserveResult(res domain.RunResult) {
	r.runs.WithLabelValues(string(res.Classification)).Inc()
	r.duration.WithLabelValues(string(res.Classification)).Observe(res.Duration.Seconds())
}

func (r *Recorder) ObserveError(kind domain.ErrorKind) {
	r.errors.WithLabelValues(string(kind)).Inc()
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

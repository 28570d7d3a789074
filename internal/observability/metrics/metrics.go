package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"psur-evidence/internal/logging"
)

const (
	metricPrefix = "psur_evidence_"

	resultSuccess = "success"
	resultError   = "error"

	sourceProfile = "profile"
	sourceRemote  = "remote"
	sourceLocal   = "local"
)

var (
	registerOnce sync.Once

	autoMapTotal      *prometheus.CounterVec
	autoMapFallbacks  *prometheus.CounterVec
	autoMapLatency    *prometheus.HistogramVec
	matchConfidence   prometheus.Histogram
	profileSaves      *prometheus.CounterVec
	profileApplied    prometheus.Counter
	sessionTransition *prometheus.CounterVec

	commitTotal   *prometheus.CounterVec
	commitLatency *prometheus.HistogramVec
	commitAtoms   *prometheus.CounterVec

	naJustifications *prometheus.CounterVec

	coverageTotal   *prometheus.CounterVec
	coverageLatency *prometheus.HistogramVec
	coveragePercent prometheus.Histogram

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers evidence metrics and DB-backed gauges.
func Init(db *sql.DB, logger *logging.Logger) {
	registerOnce.Do(func() {
		autoMapTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "automap_total",
				Help: "Total mapping proposals by source",
			},
			[]string{"source"},
		)
		autoMapFallbacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "automap_fallback_total",
				Help: "Remote mapping failures recovered by the local matcher, by reason",
			},
			[]string{"reason"},
		)
		autoMapLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "automap_latency_seconds",
				Help:    "Mapping proposal latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		)
		matchConfidence = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "match_confidence",
				Help:    "Confidence of accepted column mappings",
				Buckets: []float64{0.5, 0.7, 0.8, 0.95, 1.0},
			},
		)
		profileSaves = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "profile_saves_total",
				Help: "Total mapping profile saves by result",
			},
			[]string{"result"},
		)
		profileApplied = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "profile_auto_applied_total",
				Help: "Total uploads mapped by a stored profile",
			},
		)
		sessionTransition = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "session_transitions_total",
				Help: "Reconciliation session transitions by target state",
			},
			[]string{"state"},
		)

		commitTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commit_total",
				Help: "Total evidence commits by result",
			},
			[]string{"result"},
		)
		commitLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "commit_latency_seconds",
				Help:    "Evidence commit latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		commitAtoms = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commit_atoms_total",
				Help: "Committed evidence rows by outcome",
			},
			[]string{"outcome"},
		)

		naJustifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "na_justifications_total",
				Help: "Total not-applicable justifications by result",
			},
			[]string{"result"},
		)

		coverageTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "coverage_total",
				Help: "Total coverage computations by result",
			},
			[]string{"result"},
		)
		coverageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "coverage_latency_seconds",
				Help:    "Coverage computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		coveragePercent = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "coverage_percent",
				Help:    "Coverage percent of computed case reports",
				Buckets: []float64{0, 25, 50, 75, 90, 100},
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			autoMapTotal,
			autoMapFallbacks,
			autoMapLatency,
			matchConfidence,
			profileSaves,
			profileApplied,
			sessionTransition,
			commitTotal,
			commitLatency,
			commitAtoms,
			naJustifications,
			coverageTotal,
			coverageLatency,
			coveragePercent,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveAutoMap records a mapping proposal and the confidence of each accepted pair.
func ObserveAutoMap(source string, duration time.Duration, confidences []float64) {
	if source == "" {
		source = sourceLocal
	}
	if autoMapTotal != nil {
		autoMapTotal.WithLabelValues(source).Inc()
	}
	if autoMapLatency != nil {
		autoMapLatency.WithLabelValues(source).Observe(duration.Seconds())
	}
	if matchConfidence != nil {
		for _, c := range confidences {
			matchConfidence.Observe(c)
		}
	}
}

// IncAutoMapFallback increments the remote fallback counter.
func IncAutoMapFallback(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if autoMapFallbacks != nil {
		autoMapFallbacks.WithLabelValues(reason).Inc()
	}
}

// IncProfileSave increments profile save counter.
func IncProfileSave(result string) {
	if result == "" {
		result = resultSuccess
	}
	if profileSaves != nil {
		profileSaves.WithLabelValues(result).Inc()
	}
}

// IncProfileApplied increments the profile auto-apply counter.
func IncProfileApplied() {
	if profileApplied != nil {
		profileApplied.Inc()
	}
}

// IncSessionTransition counts a session entering state.
func IncSessionTransition(state string) {
	if state == "" {
		state = "unknown"
	}
	if sessionTransition != nil {
		sessionTransition.WithLabelValues(state).Inc()
	}
}

// ObserveCommit records commit latency, result and row outcomes.
func ObserveCommit(result string, duration time.Duration, created, duplicates int) {
	if result == "" {
		result = resultSuccess
	}
	if commitTotal != nil {
		commitTotal.WithLabelValues(result).Inc()
	}
	if commitLatency != nil {
		commitLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if commitAtoms != nil {
		if created > 0 {
			commitAtoms.WithLabelValues("created").Add(float64(created))
		}
		if duplicates > 0 {
			commitAtoms.WithLabelValues("duplicate").Add(float64(duplicates))
		}
	}
}

// IncNAJustification increments not-applicable ledger counter.
func IncNAJustification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if naJustifications != nil {
		naJustifications.WithLabelValues(result).Inc()
	}
}

// ObserveCoverage records coverage computation latency, result and percent.
func ObserveCoverage(result string, duration time.Duration, percent float64) {
	if result == "" {
		result = resultSuccess
	}
	if coverageTotal != nil {
		coverageTotal.WithLabelValues(result).Inc()
	}
	if coverageLatency != nil {
		coverageLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if coveragePercent != nil && result == resultSuccess {
		coveragePercent.Observe(percent)
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	SourceProfile = sourceProfile
	SourceRemote  = sourceRemote
	SourceLocal   = sourceLocal
)

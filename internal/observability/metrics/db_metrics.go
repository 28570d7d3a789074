package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"psur-evidence/internal/logging"
)

func registerDBMetrics(db *sql.DB, logger *logging.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "mapping_profiles",
			Help: "Stored mapping profiles",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM mapping_profiles")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "na_justifications",
			Help: "Recorded not-applicable justifications",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM na_justifications")
		},
	))
}

func queryCount(db *sql.DB, logger *logging.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logging.OrNop(logger).Warn("metrics query failed", "error", err)
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

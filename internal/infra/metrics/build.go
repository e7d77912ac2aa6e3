package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo, schemaVersion)
}

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "A constant metric with labels for version and commit hash.",
		},
		[]string{"version", "commit"},
	)

	schemaVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "store_schema_version",
		Help: "Schema version recorded in the local store.",
	})
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func SetSchemaVersion(v int) {
	schemaVersion.Set(float64(v))
}

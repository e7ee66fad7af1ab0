package dc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported by the dc controller.
type Metrics struct {
	RackHealth      *prometheus.GaugeVec
	DCHealth        *prometheus.GaugeVec
	ReportsReceived prometheus.Counter
	ParseErrors     prometheus.Counter
}

// NewMetrics creates and registers the dc metric families.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RackHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_rack_health_score",
			Help: "Last reported health score per rack.",
		}, []string{"rack_id"}),
		DCHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_dc_health_score",
			Help: "Datacenter health score: mean of fresh rack health scores.",
		}, []string{"dc_id"}),
		ReportsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_reports_received_total",
			Help: "Total rack reports accepted.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_report_parse_errors_total",
			Help: "Total inbound report lines dropped for failing to parse.",
		}),
	}
}

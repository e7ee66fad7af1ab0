package rack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBucketsMs are the histogram boundaries for one-way datagram
// latency, in milliseconds.
var latencyBucketsMs = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

// Metrics holds the Prometheus instruments exported by a rack controller.
type Metrics struct {
	SpectralError   *prometheus.GaugeVec
	SNRdB           *prometheus.GaugeVec
	PacketsReceived *prometheus.CounterVec
	PacketsLost     *prometheus.CounterVec
	LatencyMs       *prometheus.HistogramVec
	RackHealth      *prometheus.GaugeVec
	DecodeErrors    prometheus.Counter
	WrongRack       *prometheus.CounterVec
	ReportsSent     prometheus.Counter
	ReportErrors    prometheus.Counter
}

// NewMetrics creates and registers the rack metric families.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SpectralError: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_server_spectral_error",
			Help: "Fraction of spectral power outside the expected carrier bin neighborhood.",
		}, []string{"rack_id", "server_id"}),
		SNRdB: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_server_snr_db",
			Help: "Frequency-domain signal-to-noise ratio of the received carrier, in dB.",
		}, []string{"rack_id", "server_id"}),
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_packets_received_total",
			Help: "Total sample datagrams received per server.",
		}, []string{"rack_id", "server_id"}),
		PacketsLost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_packets_lost_total",
			Help: "Total datagrams inferred lost from sequence gaps per server.",
		}, []string{"rack_id", "server_id"}),
		LatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netwatch_latency_ms",
			Help:    "One-way datagram latency in milliseconds.",
			Buckets: latencyBucketsMs,
		}, []string{"rack_id", "server_id"}),
		RackHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netwatch_rack_health_score",
			Help: "Rack health score: 1 - mean spectral error across fresh servers.",
		}, []string{"rack_id"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_decode_errors_total",
			Help: "Total inbound datagrams dropped for failing to decode.",
		}),
		WrongRack: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_wrong_rack_total",
			Help: "Total datagrams dropped for carrying a foreign rack id.",
		}, []string{"rack_id"}),
		ReportsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_reports_sent_total",
			Help: "Total rack reports delivered to the dc controller.",
		}),
		ReportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_report_errors_total",
			Help: "Total rack reports dropped on transport failure.",
		}),
	}
}

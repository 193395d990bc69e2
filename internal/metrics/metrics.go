// Package metrics implements the router's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vnet"

// Metrics is a set of router counters on its own registry, so several
// routers can live in one process without colliding.
type Metrics struct {
	Registry *prometheus.Registry

	// PacketsReceived counts datagrams read from the transport
	PacketsReceived prometheus.Counter

	// Verdicts counts processed packets by outcome
	Verdicts *prometheus.CounterVec

	// ICMPSent counts generated ICMP error messages by type
	ICMPSent *prometheus.CounterVec

	// SendErrors counts transport write failures
	SendErrors prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_packets_received_total",
			Help:      "Total number of datagrams received",
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_verdicts_total",
			Help:      "Total number of packets processed, by verdict",
		}, []string{"verdict"}),
		ICMPSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_icmp_sent_total",
			Help:      "Total number of ICMP error messages sent, by type",
		}, []string{"type"}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_send_errors_total",
			Help:      "Total number of failed transport writes",
		}),
	}
	m.Registry.MustRegister(m.PacketsReceived, m.Verdicts, m.ICMPSent, m.SendErrors)
	return m
}

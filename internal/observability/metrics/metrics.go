// Package metrics exposes billing counters for the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	InvoicesGenerated prometheus.Counter
	InvoicesSkipped   prometheus.Counter
	InvoicesFailed    prometheus.Counter
	GenerationSeconds prometheus.Histogram

	PaymentsRecorded *prometheus.CounterVec
	PaymentsRefunded prometheus.Counter

	Registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		InvoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netbill",
			Name:      "invoices_generated_total",
			Help:      "Invoices created by monthly runs.",
		}),
		InvoicesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netbill",
			Name:      "invoices_skipped_total",
			Help:      "Customers skipped during monthly runs, already billed or failed.",
		}),
		InvoicesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netbill",
			Name:      "invoices_failed_total",
			Help:      "Per-customer failures during monthly runs.",
		}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netbill",
			Name:      "invoice_generation_seconds",
			Help:      "Wall time of monthly invoice runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Name:      "payments_recorded_total",
			Help:      "Payments recorded, by method.",
		}, []string{"method"}),
		PaymentsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netbill",
			Name:      "payments_refunded_total",
			Help:      "Refunds issued.",
		}),
		Registry: reg,
	}

	reg.MustRegister(
		m.InvoicesGenerated,
		m.InvoicesSkipped,
		m.InvoicesFailed,
		m.GenerationSeconds,
		m.PaymentsRecorded,
		m.PaymentsRefunded,
	)

	return m
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)

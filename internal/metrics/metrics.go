package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoanMetrics counts ledger operations by outcome
type LoanMetrics struct {
	operations *prometheus.CounterVec
	openLoans  prometheus.Gauge
}

// NewLoanMetrics creates and registers the ledger's metric collectors
func NewLoanMetrics(reg prometheus.Registerer) *LoanMetrics {
	m := &LoanMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_operations_total",
				Help: "Ledger operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		openLoans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loans_open",
				Help: "Number of currently open loans",
			},
		),
	}

	reg.MustRegister(m.operations, m.openLoans)
	return m
}

// ObserveOperation records the outcome of a ledger operation
func (m *LoanMetrics) ObserveOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "rejected"
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

// SetOpenLoans updates the open-loan gauge, fed by the reporting views
func (m *LoanMetrics) SetOpenLoans(n int64) {
	m.openLoans.Set(float64(n))
}

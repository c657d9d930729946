package ledger

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atelierai/agentcore/pkg/models"
)

// Metrics holds the prometheus counters for ledger observability, wired
// here since the core has no other natural home for credit-flow metrics.
type Metrics struct {
	Debits  *prometheus.CounterVec
	Refills *prometheus.CounterVec
	Denials prometheus.Counter
}

// NewMetrics registers ledger counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Debits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_ledger_debits_total",
			Help: "Total committed debit transactions, labeled by action_source.",
		}, []string{"action_source"}),
		Refills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_ledger_refills_total",
			Help: "Total committed refill transactions, labeled by action_source.",
		}, []string{"action_source"}),
		Denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_ledger_admission_denials_total",
			Help: "Total admission-gate denials (insufficient credits, no grant).",
		}),
	}
	reg.MustRegister(m.Debits, m.Refills, m.Denials)
	return m
}

// InstrumentedLedger wraps a Ledger, recording Metrics around every
// balance-mutating call without altering dispatch semantics.
type InstrumentedLedger struct {
	Ledger
	metrics *Metrics
}

// Instrument wraps l with metrics recording.
func Instrument(l Ledger, metrics *Metrics) *InstrumentedLedger {
	return &InstrumentedLedger{Ledger: l, metrics: metrics}
}

func (i *InstrumentedLedger) Debit(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	txn, err := i.Ledger.Debit(ctx, subject, amount, source, actionType, entityID)
	if err != nil {
		i.metrics.Denials.Inc()
		return nil, err
	}
	i.metrics.Debits.WithLabelValues(string(source)).Inc()
	return txn, nil
}

func (i *InstrumentedLedger) Refill(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	txn, err := i.Ledger.Refill(ctx, subject, amount, source, actionType, entityID)
	if err != nil {
		return nil, err
	}
	i.metrics.Refills.WithLabelValues(string(source)).Inc()
	return txn, nil
}

var _ Ledger = (*InstrumentedLedger)(nil)

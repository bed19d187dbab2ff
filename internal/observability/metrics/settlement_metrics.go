package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SettlementOutcomeProcessed            = "processed"
	SettlementOutcomeAlreadyProcessed     = "already_processed"
	SettlementOutcomeOrderFailed          = "order_failed"
	SettlementOutcomePaymentNotCaptured   = "payment_not_captured"
	SettlementOutcomeDeploymentNotAllowed = "deployment_not_allowed"
	SettlementOutcomeCouponRejected       = "coupon_rejected"
	SettlementOutcomeProvisioningFailed   = "provisioning_failed"
	SettlementOutcomeNotFound             = "not_found"
	SettlementOutcomeDeadlineExceeded     = "deadline_exceeded"
	SettlementOutcomeLockBusy             = "lock_busy"
	SettlementOutcomeDBLockTimeout        = "db_lock_timeout"
	SettlementOutcomeSerializationFailure = "serialization_failure"
	SettlementOutcomeUniqueViolation      = "unique_violation"
	SettlementOutcomeUnknown              = "unknown"
)

const (
	RedemptionResultRedeemed  = "redeemed"
	RedemptionResultExhausted = "exhausted"
	RedemptionResultRejected  = "rejected"
)

const (
	CompensationDeleteServer    = "delete_server"
	CompensationRenewalUnrolled = "renewal_not_rolled_back"
)

const (
	RecoveryActionSettled   = "settled"
	RecoveryActionFailed    = "failed"
	RecoveryActionAbandoned = "abandoned"
	RecoveryActionWaiting   = "waiting"
	RecoveryActionError     = "error"
)

const (
	LockResourceOrderByReference = "order_by_reference"
	LockResourceCouponByID       = "coupon_by_id"
	LockResourceSettlementMutex  = "settlement_mutex"
)

// SettlementMetrics captures quote and settlement health signals.
type SettlementMetrics struct {
	outcomes         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	redemptions      *prometheus.CounterVec
	compensations    *prometheus.CounterVec
	recoveries       *prometheus.CounterVec
	quoteDuration    prometheus.Observer
	dbLockWait       *prometheus.HistogramVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	settlementMetricsOnce sync.Once
	settlementMetrics     *SettlementMetrics
)

// Settlement returns the singleton settlement metrics registry.
func Settlement() *SettlementMetrics {
	return SettlementWithConfig(Config{})
}

// SettlementWithConfig returns the singleton settlement metrics registry using config labels.
func SettlementWithConfig(cfg Config) *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementMetrics = newSettlementMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return settlementMetrics
}

func newSettlementMetrics(registerer prometheus.Registerer, cfg Config) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "panelbilling"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "panelbilling_settlement_outcomes_total",
		Help:        "Settlement attempts by low-cardinality outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "panelbilling_settlement_duration_seconds",
		Help:        "Settlement latency including gateway and provisioning calls.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		ConstLabels: constLabels,
	}, []string{"deployment_type"})
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "panelbilling_coupon_redemptions_total",
		Help:        "Coupon redemption attempts at settlement time.",
		ConstLabels: constLabels,
	}, []string{"result"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "panelbilling_settlement_compensations_total",
		Help:        "Compensating actions after a failed capture, for operator reconciliation.",
		ConstLabels: constLabels,
	}, []string{"action"})
	recoveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "panelbilling_recovery_actions_total",
		Help:        "Actions taken by the stale order recovery sweep.",
		ConstLabels: constLabels,
	}, []string{"action"})
	quoteDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "panelbilling_quote_duration_seconds",
		Help:        "Quote calculation latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		ConstLabels: constLabels,
	})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "panelbilling_db_lock_wait_seconds",
		Help:        "Lock wait time for SELECT FOR UPDATE contention during settlement.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		outcomes,
		duration,
		redemptions,
		compensations,
		recoveries,
		quoteDuration,
		dbLockWait,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceOrderByReference: dbLockWait.WithLabelValues(LockResourceOrderByReference),
		LockResourceCouponByID:       dbLockWait.WithLabelValues(LockResourceCouponByID),
		LockResourceSettlementMutex:  dbLockWait.WithLabelValues(LockResourceSettlementMutex),
	}

	return &SettlementMetrics{
		outcomes:         outcomes,
		duration:         duration,
		redemptions:      redemptions,
		compensations:    compensations,
		recoveries:       recoveries,
		quoteDuration:    quoteDuration,
		dbLockWait:       dbLockWait,
		lockWaitObserver: lockWaitObserver,
	}
}

// IncOutcome increments the settlement outcome counter.
func (m *SettlementMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *SettlementMetrics) ObserveSettlement(deploymentType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	if deploymentType == "" {
		deploymentType = "unknown"
	}
	m.duration.WithLabelValues(deploymentType).Observe(duration.Seconds())
}

func (m *SettlementMetrics) IncRedemption(result string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(result).Inc()
}

func (m *SettlementMetrics) IncCompensation(action string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(action).Inc()
}

func (m *SettlementMetrics) IncRecovery(action string) {
	if m == nil || m.recoveries == nil {
		return
	}
	m.recoveries.WithLabelValues(action).Inc()
}

func (m *SettlementMetrics) ObserveQuote(duration time.Duration) {
	if m == nil || m.quoteDuration == nil {
		return
	}
	m.quoteDuration.Observe(duration.Seconds())
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *SettlementMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyInfraReason maps non-domain settlement errors to a low-cardinality outcome.
func ClassifyInfraReason(err error) string {
	if err == nil {
		return SettlementOutcomeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SettlementOutcomeDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return SettlementOutcomeDBLockTimeout
	}
	if hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return SettlementOutcomeSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return SettlementOutcomeUniqueViolation
	}
	return SettlementOutcomeUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

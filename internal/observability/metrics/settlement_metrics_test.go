package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyInfraReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("settle: %w", context.DeadlineExceeded), want: SettlementOutcomeDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SettlementOutcomeDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SettlementOutcomeSerializationFailure},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: SettlementOutcomeSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SettlementOutcomeUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SettlementOutcomeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyInfraReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSettlementCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSettlementMetrics(registry, Config{ServiceName: "panelbilling", Environment: "test"})

	m.IncOutcome(SettlementOutcomeProcessed)
	m.IncOutcome(SettlementOutcomeProcessed)
	m.IncRedemption(RedemptionResultExhausted)
	m.IncCompensation(CompensationDeleteServer)

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(SettlementOutcomeProcessed)); got != 2 {
		t.Fatalf("expected 2 processed outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(m.redemptions.WithLabelValues(RedemptionResultExhausted)); got != 1 {
		t.Fatalf("expected 1 exhausted redemption, got %v", got)
	}
	if got := testutil.ToFloat64(m.compensations.WithLabelValues(CompensationDeleteServer)); got != 1 {
		t.Fatalf("expected 1 compensation, got %v", got)
	}
}

func TestObserveDBLockWaitUsesPreboundObserver(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSettlementMetrics(registry, Config{})

	m.ObserveDBLockWait(LockResourceOrderByReference, 20*time.Millisecond)
	m.ObserveDBLockWait("adhoc", 5*time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var lockWait *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "panelbilling_db_lock_wait_seconds" {
			lockWait = family
		}
	}
	if lockWait == nil {
		t.Fatalf("expected lock wait histogram to be registered")
	}
	if len(lockWait.GetMetric()) != 4 {
		t.Fatalf("expected 3 prebound series plus 1 adhoc, got %d", len(lockWait.GetMetric()))
	}
	for _, metric := range lockWait.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "service" && label.GetValue() != "panelbilling" {
				t.Fatalf("expected default service label, got %q", label.GetValue())
			}
		}
	}
}

func TestNilSettlementMetricsIsSafe(t *testing.T) {
	var m *SettlementMetrics
	m.IncOutcome(SettlementOutcomeProcessed)
	m.ObserveQuote(time.Millisecond)
	m.ObserveDBLockWait(LockResourceCouponByID, time.Millisecond)
}

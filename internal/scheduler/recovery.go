package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
	"github.com/smallbiznis/panelbilling/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	settlementdomain "github.com/smallbiznis/panelbilling/internal/settlement/domain"
	"go.uber.org/zap"
)

// RecoverSettlementsJob finishes orders whose client never came back to settle.
// Confirmed payments and free orders are settled, payments that will never
// be confirmed are abandoned, everything else waits for the next tick.
func (s *Scheduler) RecoverSettlementsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobRecoverSettlements, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	orders, err := s.orderRepo.ListStalePending(ctx, s.db, now.Add(-s.cfg.QuietPeriod), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}

		action, err := s.recoverOrder(ctx, order, now)
		s.outcomes.IncRecovery(action)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.recovery.failed", jobRecoverSettlements, order.ID, err,
				zap.String("action", action),
			)
			continue
		}
		run.AddProcessed(1)
		s.logger(ctx).Debug("scheduler.recovery.order",
			zap.String("order_id", idString(order.ID)),
			zap.String("action", action),
		)
	}
	return nil
}

func (s *Scheduler) recoverOrder(ctx context.Context, order orderdomain.Order, now time.Time) (string, error) {
	if order.PaymentReference == nil || strings.TrimSpace(*order.PaymentReference) == "" {
		return metrics.RecoveryActionWaiting, nil
	}
	reference := *order.PaymentReference

	if order.RequiresPayment() {
		txn, err := s.gateway.Retrieve(ctx, reference)
		if err != nil {
			if errors.Is(err, gatewaydomain.ErrTransactionNotFound) {
				return s.abandon(ctx, order, now)
			}
			return metrics.RecoveryActionError, err
		}

		switch txn.Status {
		case gatewaydomain.StatusCapturable, gatewaydomain.StatusCaptured:
		case gatewaydomain.StatusCanceled:
			return s.abandon(ctx, order, now)
		default:
			if now.Sub(order.CreatedAt) < s.cfg.AbandonAfter {
				return metrics.RecoveryActionWaiting, nil
			}
			// TODO: cancel the gateway transaction once Gateway exposes Cancel.
			return s.abandon(ctx, order, now)
		}
	}

	return s.settle(ctx, order)
}

func (s *Scheduler) settle(ctx context.Context, order orderdomain.Order) (string, error) {
	_, err := s.settler.Settle(ctx, *order.PaymentReference, order.UserID)
	if err == nil || errors.Is(err, settlementdomain.ErrAlreadyProcessed) {
		return metrics.RecoveryActionSettled, nil
	}
	if errors.Is(err, settlementdomain.ErrOrderFailed) {
		return metrics.RecoveryActionFailed, nil
	}

	// Terminal settlement failures have already marked the order FAILED.
	current, findErr := s.orderRepo.FindByID(ctx, s.db, order.ID)
	if findErr == nil && current != nil && current.Status == orderdomain.StatusFailed {
		return metrics.RecoveryActionFailed, nil
	}
	return metrics.RecoveryActionError, err
}

func (s *Scheduler) abandon(ctx context.Context, order orderdomain.Order, now time.Time) (string, error) {
	if order.Provisioned() {
		// Settlement fails the order and removes the server it left behind.
		return s.settle(ctx, order)
	}
	changed, err := s.orderRepo.MarkFailed(ctx, s.db, order.ID, settlementdomain.ReasonAbandoned, now)
	if err != nil {
		return metrics.RecoveryActionError, err
	}
	if !changed {
		// Settled concurrently.
		return metrics.RecoveryActionWaiting, nil
	}
	s.logger(ctx).Info("scheduler.recovery.abandoned",
		zap.String("order_id", idString(order.ID)),
		zap.String("payment_reference", *order.PaymentReference),
	)
	return metrics.RecoveryActionAbandoned, nil
}

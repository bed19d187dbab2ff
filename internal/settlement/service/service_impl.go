package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/panelbilling/internal/clock"
	"github.com/smallbiznis/panelbilling/internal/config"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	"github.com/smallbiznis/panelbilling/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	provisioningdomain "github.com/smallbiznis/panelbilling/internal/provisioning/domain"
	"github.com/smallbiznis/panelbilling/internal/ratelimit"
	settlementdomain "github.com/smallbiznis/panelbilling/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// detachedTimeout bounds writes and cleanup that must outlive the request.
const detachedTimeout = 5 * time.Second

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Billing     *config.BillingConfigHolder
	OrderRepo   orderdomain.Repository
	NodeRepo    nodedomain.Repository
	CouponSvc   coupondomain.Service
	Gateway     gatewaydomain.Gateway
	Provisioner provisioningdomain.Provisioner
	Limiter     *ratelimit.BillingLimiter  `optional:"true"`
	Metrics     *metrics.Metrics           `optional:"true"`
	Outcomes    *metrics.SettlementMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	billing     *config.BillingConfigHolder
	orderRepo   orderdomain.Repository
	nodeRepo    nodedomain.Repository
	couponSvc   coupondomain.Service
	gateway     gatewaydomain.Gateway
	provisioner provisioningdomain.Provisioner
	limiter     *ratelimit.BillingLimiter
	metrics     *metrics.Metrics
	outcomes    *metrics.SettlementMetrics
}

func New(p Params) settlementdomain.Service {
	limiter := p.Limiter
	if limiter == nil {
		limiter = ratelimit.NewBillingLimiter(ratelimit.BillingLimiterParams{Billing: p.Billing, Metrics: p.Metrics})
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		clock:       p.Clock,
		billing:     p.Billing,
		orderRepo:   p.OrderRepo,
		nodeRepo:    p.NodeRepo,
		couponSvc:   p.CouponSvc,
		gateway:     p.Gateway,
		provisioner: p.Provisioner,
		limiter:     limiter,
		metrics:     p.Metrics,
		outcomes:    p.Outcomes,
	}
}

// terminalError is a settlement failure that leaves the order FAILED once the
// settlement transaction has rolled back.
type terminalError struct {
	reason string
	err    error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

func (s *Service) Settle(ctx context.Context, reference string, userID snowflake.ID) (*orderdomain.Settlement, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, settlementdomain.ErrInvalidReference
	}
	if userID == 0 {
		return nil, orderdomain.ErrInvalidUser
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.billing.Get().SettlementTimeout)
	defer cancel()

	settlement, deploymentType, err := s.settle(ctx, reference, userID)

	outcome := outcomeOf(err)
	s.outcomes.IncOutcome(outcome)
	if deploymentType != "" {
		s.outcomes.ObserveSettlement(deploymentType, time.Since(start))
	}

	log := s.log.With(zap.String("payment_reference", reference), zap.String("outcome", outcome))
	if err != nil {
		switch outcome {
		case metrics.SettlementOutcomeAlreadyProcessed, metrics.SettlementOutcomeNotFound:
			log.Debug("settlement skipped", zap.Error(err))
		case metrics.SettlementOutcomeDeadlineExceeded, metrics.SettlementOutcomeUnknown,
			metrics.SettlementOutcomeDBLockTimeout, metrics.SettlementOutcomeSerializationFailure:
			log.Error("settlement failed", zap.Error(err))
		default:
			log.Warn("settlement rejected", zap.Error(err))
		}
		return nil, err
	}
	log.Info("order settled",
		zap.String("order_id", settlement.OrderID.String()),
		zap.String("server_id", settlement.ServerID),
	)
	return settlement, nil
}

func (s *Service) settle(ctx context.Context, reference string, userID snowflake.ID) (*orderdomain.Settlement, string, error) {
	lockStart := time.Now()
	release, err := s.limiter.LockSettlement(ctx, reference)
	s.outcomes.ObserveDBLockWait(metrics.LockResourceSettlementMutex, time.Since(lockStart))
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockBusy) || ctx.Err() != nil {
			return nil, "", timeoutError()
		}
		return nil, "", err
	}
	defer release()

	order, err := s.orderRepo.FindByReference(ctx, s.db, reference, userID)
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, "", orderdomain.ErrNotFound
	}
	deploymentType := string(order.DeploymentType)

	settlement, server, err := s.settleOrder(ctx, order)
	if err == nil {
		return settlement, deploymentType, nil
	}

	var terminal *terminalError
	if errors.As(err, &terminal) {
		s.compensate(ctx, order, server)
		s.failOrder(ctx, order.ID, terminal.reason)
		return nil, deploymentType, err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return nil, deploymentType, timeoutError()
	}
	return nil, deploymentType, err
}

// settleOrder drives one attempt. The returned server is the one provisioned
// for the order so far, set even when the attempt fails.
func (s *Service) settleOrder(ctx context.Context, order *orderdomain.Order) (*orderdomain.Settlement, *provisioningdomain.Server, error) {
	if err := statusError(order.Status); err != nil {
		return nil, nil, err
	}
	snapshot := order.Metadata.Data()
	server := recordedServer(order)

	captured := false
	if order.RequiresPayment() {
		var err error
		captured, err = s.verifyPayment(ctx, order)
		if err != nil {
			return nil, server, err
		}
	}

	node, err := s.nodeRepo.FindByID(ctx, s.db, order.NodeID)
	if err != nil {
		return nil, server, err
	}
	if node == nil {
		return nil, server, fmt.Errorf("%w: node %s not found", nodedomain.ErrDeploymentNotAllowed, order.NodeID)
	}
	if err := node.Admits(order.DeploymentType, order.Type == orderdomain.TypeNew); err != nil {
		return nil, server, err
	}

	if err := s.checkCoupons(ctx, order, snapshot); err != nil {
		return nil, server, err
	}

	if server == nil {
		created, err := s.provision(ctx, order, snapshot)
		if err != nil {
			return nil, nil, err
		}
		server, err = s.recordProvisioned(ctx, order, created)
		if err != nil {
			return nil, server, err
		}
	}

	var settlement *orderdomain.Settlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		locked, err := s.orderRepo.FindByReferenceForUpdate(ctx, tx, *order.PaymentReference, order.UserID)
		s.outcomes.ObserveDBLockWait(metrics.LockResourceOrderByReference, time.Since(lockStart))
		if err != nil {
			return err
		}
		if locked == nil {
			return orderdomain.ErrNotFound
		}
		if err := statusError(locked.Status); err != nil {
			return err
		}

		if err := s.redeemCoupons(ctx, tx, order, snapshot); err != nil {
			return err
		}

		if order.RequiresPayment() && !captured {
			if err := s.capture(ctx, order); err != nil {
				return err
			}
		}

		name := fmt.Sprintf("%s (%s)", order.Name, serverLabel(server))
		ok, err := s.orderRepo.MarkProcessed(ctx, tx, order.ID, name, server.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return settlementdomain.ErrAlreadyProcessed
		}
		settlement = &orderdomain.Settlement{
			OrderID:          order.ID,
			Status:           orderdomain.StatusProcessed,
			Name:             name,
			ServerID:         server.ID,
			ServerIdentifier: server.Identifier,
		}
		return nil
	})
	if err != nil {
		return nil, server, err
	}
	return settlement, server, nil
}

func statusError(status orderdomain.Status) error {
	switch status {
	case orderdomain.StatusProcessed:
		return settlementdomain.ErrAlreadyProcessed
	case orderdomain.StatusFailed:
		return settlementdomain.ErrOrderFailed
	}
	return nil
}

// recordedServer returns the server an earlier attempt provisioned and
// committed for order, or nil.
func recordedServer(order *orderdomain.Order) *provisioningdomain.Server {
	if !order.Provisioned() {
		return nil
	}
	server := &provisioningdomain.Server{ID: *order.ServerID}
	if order.ServerIdentifier != nil {
		server.Identifier = *order.ServerIdentifier
	}
	return server
}

// recordProvisioned commits the server on the order before any money moves,
// so a retry reuses it instead of provisioning again. The write survives the
// caller's deadline.
func (s *Service) recordProvisioned(ctx context.Context, order *orderdomain.Order, server *provisioningdomain.Server) (*provisioningdomain.Server, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()

	log := s.log.With(zap.String("order_id", order.ID.String()), zap.String("server_id", server.ID))
	ok, err := s.orderRepo.RecordProvisioned(writeCtx, s.db, order.ID, server.ID, server.Identifier, s.clock.Now())
	if err != nil {
		log.Error("failed to record provisioned server", zap.Error(err))
		s.compensate(ctx, order, server)
		return nil, err
	}
	if ok {
		return server, nil
	}

	// Another attempt got there first.
	current, err := s.orderRepo.FindByID(writeCtx, s.db, order.ID)
	if err != nil {
		return server, err
	}
	if current == nil {
		s.compensate(ctx, order, server)
		return nil, orderdomain.ErrNotFound
	}
	recorded := recordedServer(current)
	if recorded != nil && recorded.ID == server.ID {
		return recorded, nil
	}
	s.compensate(ctx, order, server)
	if err := statusError(current.Status); err != nil {
		return recorded, err
	}
	if recorded == nil {
		return nil, fmt.Errorf("%w: server was not recorded", settlementdomain.ErrProvisioningFailed)
	}
	log.Warn("reusing server recorded by a concurrent attempt", zap.String("recorded_server_id", recorded.ID))
	return recorded, nil
}

// verifyPayment reports whether the transaction was already captured by an
// earlier attempt.
func (s *Service) verifyPayment(ctx context.Context, order *orderdomain.Order) (bool, error) {
	reference := ""
	if order.PaymentReference != nil {
		reference = *order.PaymentReference
	}
	txn, err := s.gateway.Retrieve(ctx, reference)
	if err != nil {
		s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "retrieve", "error")
		if errors.Is(err, gatewaydomain.ErrTransactionNotFound) {
			return false, &terminalError{
				reason: settlementdomain.ReasonNotCapturable,
				err:    fmt.Errorf("%w: %v", settlementdomain.ErrPaymentNotCaptured, err),
			}
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: %v", settlementdomain.ErrGatewayUnavailable, err)
	}
	s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "retrieve", "ok")

	captured := false
	switch txn.Status {
	case gatewaydomain.StatusCapturable:
	case gatewaydomain.StatusCaptured:
		captured = true
	default:
		return false, &terminalError{
			reason: settlementdomain.ReasonNotCapturable,
			err:    fmt.Errorf("%w: transaction is %s", settlementdomain.ErrPaymentNotCaptured, txn.Status),
		}
	}

	expected := gatewaydomain.ToMinorUnits(order.Total, order.Currency)
	if txn.Amount != expected || !strings.EqualFold(txn.Currency, order.Currency) {
		return false, &terminalError{
			reason: settlementdomain.ReasonAmountMismatch,
			err: fmt.Errorf("%w: expected %d %s, gateway holds %d %s",
				settlementdomain.ErrPaymentNotCaptured, expected, order.Currency, txn.Amount, strings.ToUpper(txn.Currency)),
		}
	}
	return captured, nil
}

// checkCoupons re-validates the order's coupons before anything is
// provisioned. Redemption inside the settlement transaction stays the
// authority on usage limits.
func (s *Service) checkCoupons(ctx context.Context, order *orderdomain.Order, snapshot orderdomain.Snapshot) error {
	codes := snapshot.CouponCodes()
	if len(codes) == 0 {
		return nil
	}
	userID := order.UserID
	_, err := s.couponSvc.Check(ctx, coupondomain.CheckRequest{
		Codes:  codes,
		UserID: &userID,
		TermID: order.TermID,
		Now:    s.clock.Now(),
	})
	if err == nil {
		return nil
	}
	code := ""
	if errors.Is(err, coupondomain.ErrNotFound) {
		code = strings.Join(codes, ",")
	}
	return s.couponFailure(err, code)
}

func (s *Service) redeemCoupons(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, snapshot orderdomain.Snapshot) error {
	userID := order.UserID
	for _, c := range snapshot.Coupons {
		lockStart := time.Now()
		_, err := s.couponSvc.Redeem(ctx, tx, coupondomain.RedeemRequest{
			CouponID: c.ID,
			OrderID:  order.ID,
			UserID:   &userID,
			TermID:   order.TermID,
			Amount:   c.Discount,
			Now:      s.clock.Now(),
		})
		s.outcomes.ObserveDBLockWait(metrics.LockResourceCouponByID, time.Since(lockStart))
		switch {
		case err == nil:
			s.outcomes.IncRedemption(metrics.RedemptionResultRedeemed)
		case errors.Is(err, coupondomain.ErrAlreadyRedeemed):
		default:
			return s.couponFailure(err, c.Code)
		}
	}
	return nil
}

// couponFailure turns a coupon rejection into a terminal settlement error.
// Anything else is returned unchanged.
func (s *Service) couponFailure(err error, code string) error {
	switch {
	case errors.Is(err, coupondomain.ErrNotFound):
		s.outcomes.IncRedemption(metrics.RedemptionResultRejected)
		return &terminalError{
			reason: settlementdomain.ReasonCouponRejected + ": " + string(coupondomain.ReasonInactive),
			err:    &coupondomain.RejectedError{Code: code, Reason: coupondomain.ReasonInactive},
		}
	case errors.Is(err, coupondomain.ErrRejected):
		reason := settlementdomain.ReasonCouponRejected
		var rejected *coupondomain.RejectedError
		if errors.As(err, &rejected) {
			reason += ": " + string(rejected.Reason)
			if rejected.Reason == coupondomain.ReasonUsageExhausted {
				s.outcomes.IncRedemption(metrics.RedemptionResultExhausted)
			} else {
				s.outcomes.IncRedemption(metrics.RedemptionResultRejected)
			}
		}
		return &terminalError{reason: reason, err: err}
	default:
		return err
	}
}

func (s *Service) provision(ctx context.Context, order *orderdomain.Order, snapshot orderdomain.Snapshot) (*provisioningdomain.Server, error) {
	var (
		server *provisioningdomain.Server
		err    error
	)
	switch order.Type {
	case orderdomain.TypeRenewal:
		if order.ServerID == nil || strings.TrimSpace(*order.ServerID) == "" {
			return nil, fmt.Errorf("%w: renewal without server", settlementdomain.ErrProvisioningFailed)
		}
		days := snapshot.TermDays
		if days <= 0 {
			days = s.billing.Get().DurationBaseDays
		}
		server, err = s.provisioner.RenewServer(ctx, *order.ServerID, days)
	default:
		server, err = s.provisioner.CreateServer(ctx, provisioningdomain.CreateRequest{
			OrderID:        order.ID,
			UserID:         order.UserID,
			NodeID:         order.NodeID,
			ProductID:      order.ProductID,
			Name:           order.Name,
			Storefront:     order.Storefront,
			TermID:         order.TermID,
			DurationDays:   snapshot.TermDays,
			DeploymentType: string(order.DeploymentType),
			Resources:      snapshot.Resources(),
			Coupons:        snapshot.CouponCodes(),
			Variables:      snapshot.Variables,
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", settlementdomain.ErrProvisioningFailed, err)
	}
	if server == nil || server.ID == "" {
		return nil, fmt.Errorf("%w: empty server response", settlementdomain.ErrProvisioningFailed)
	}
	return server, nil
}

func (s *Service) capture(ctx context.Context, order *orderdomain.Order) error {
	_, err := s.gateway.Capture(ctx, *order.PaymentReference)
	if err == nil {
		s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "capture", "ok")
		return nil
	}
	s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "capture", "error")
	if ctx.Err() != nil {
		// The capture may have landed; the next attempt sees it as captured.
		return ctx.Err()
	}
	return &terminalError{
		reason: settlementdomain.ReasonCaptureFailed,
		err:    fmt.Errorf("%w: %v", settlementdomain.ErrPaymentNotCaptured, err),
	}
}

// compensate undoes a new server provisioned for an order that will not be
// processed. A renewal cannot be taken back and is only reported.
func (s *Service) compensate(ctx context.Context, order *orderdomain.Order, server *provisioningdomain.Server) {
	if server == nil {
		return
	}
	log := s.log.With(
		zap.String("order_id", order.ID.String()),
		zap.String("server_id", server.ID),
	)
	if order.Type != orderdomain.TypeNew {
		s.outcomes.IncCompensation(metrics.CompensationRenewalUnrolled)
		log.Error("renewal applied but order was not processed")
		return
	}

	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()
	if err := s.provisioner.DeleteServer(compCtx, server.ID); err != nil && !errors.Is(err, provisioningdomain.ErrServerNotFound) {
		log.Error("server left running after failed settlement", zap.Error(err))
		return
	}
	s.outcomes.IncCompensation(metrics.CompensationDeleteServer)
	log.Warn("server deleted after failed settlement")
}

func (s *Service) failOrder(ctx context.Context, id snowflake.ID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()
	ok, err := s.orderRepo.MarkFailed(ctx, s.db, id, reason, s.clock.Now())
	if err != nil {
		s.log.Error("failed to mark order failed", zap.String("order_id", id.String()), zap.String("reason", reason), zap.Error(err))
		return
	}
	if ok {
		s.log.Info("order failed", zap.String("order_id", id.String()), zap.String("reason", reason))
	}
}

func serverLabel(server *provisioningdomain.Server) string {
	if id := strings.TrimSpace(server.Identifier); id != "" {
		return id
	}
	return server.ID
}

func timeoutError() error {
	return fmt.Errorf("%w: %w", settlementdomain.ErrSettlementTimeout, context.DeadlineExceeded)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.SettlementOutcomeProcessed
	case errors.Is(err, settlementdomain.ErrAlreadyProcessed):
		return metrics.SettlementOutcomeAlreadyProcessed
	case errors.Is(err, settlementdomain.ErrOrderFailed):
		return metrics.SettlementOutcomeOrderFailed
	case errors.Is(err, settlementdomain.ErrPaymentNotCaptured):
		return metrics.SettlementOutcomePaymentNotCaptured
	case errors.Is(err, nodedomain.ErrDeploymentNotAllowed):
		return metrics.SettlementOutcomeDeploymentNotAllowed
	case errors.Is(err, coupondomain.ErrRejected):
		return metrics.SettlementOutcomeCouponRejected
	case errors.Is(err, settlementdomain.ErrProvisioningFailed):
		return metrics.SettlementOutcomeProvisioningFailed
	case errors.Is(err, orderdomain.ErrNotFound):
		return metrics.SettlementOutcomeNotFound
	default:
		return metrics.ClassifyInfraReason(err)
	}
}

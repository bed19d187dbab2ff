package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/panelbilling/internal/clock"
	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	"github.com/smallbiznis/panelbilling/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	"github.com/smallbiznis/panelbilling/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     orderdomain.Repository
	QuoteSvc quotedomain.Service
	NodeSvc  nodedomain.Service
	Gateway  gatewaydomain.Gateway
	Settler  orderdomain.Settler
	Limiter  *ratelimit.BillingLimiter `optional:"true"`
	Metrics  *metrics.Metrics          `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     orderdomain.Repository
	quoteSvc quotedomain.Service
	nodeSvc  nodedomain.Service
	gateway  gatewaydomain.Gateway
	settler  orderdomain.Settler
	limiter  *ratelimit.BillingLimiter
	metrics  *metrics.Metrics
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		quoteSvc: p.QuoteSvc,
		nodeSvc:  p.NodeSvc,
		gateway:  p.Gateway,
		settler:  p.Settler,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}
}

func (s *Service) Checkout(ctx context.Context, req orderdomain.CheckoutRequest) (*orderdomain.CheckoutResponse, error) {
	if req.UserID == 0 {
		return nil, orderdomain.ErrInvalidUser
	}
	orderType, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	nodeID, err := parseID(req.NodeID)
	if err != nil {
		return nil, orderdomain.ErrInvalidNode
	}

	name := strings.TrimSpace(req.Name)
	var serverID *string
	if orderType == orderdomain.TypeRenewal {
		id := strings.TrimSpace(req.ServerID)
		if id == "" {
			return nil, orderdomain.ErrInvalidServer
		}
		serverID = &id
		if name == "" {
			name = "Renewal " + id
		}
	}
	if name == "" {
		return nil, orderdomain.ErrInvalidName
	}

	var productID *snowflake.ID
	if raw := strings.TrimSpace(req.ProductID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return nil, orderdomain.ErrInvalidProduct
		}
		productID = &id
	}

	allowed, err := s.limiter.AllowCheckout(ctx, req.UserID.String())
	if err != nil {
		s.log.Warn("checkout rate limiter unavailable", zap.Error(err))
	} else if !allowed.Allowed {
		return nil, orderdomain.ErrRateLimited
	}

	quoteReq := req.Request
	userID := req.UserID
	quoteReq.UserID = &userID
	result, err := s.quoteSvc.CalculateQuote(ctx, quoteReq)
	if err != nil {
		return nil, err
	}
	deploymentType := result.Quote.DeploymentType

	if _, err := s.nodeSvc.Gate(ctx, nodeID, deploymentType, orderType == orderdomain.TypeNew); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:             s.genID.Generate(),
		Name:           name,
		UserID:         req.UserID,
		ProductID:      productID,
		ServerID:       serverID,
		Status:         orderdomain.StatusPending,
		Type:           orderType,
		Storefront:     strings.TrimSpace(req.Storefront),
		TermID:         result.Quote.TermID,
		NodeID:         nodeID,
		Currency:       result.Quote.Currency,
		Total:          result.Quote.TotalAfterDiscount,
		DeploymentType: deploymentType,
		Metadata:       datatypes.NewJSONType(orderdomain.SnapshotFromQuote(result, req.Variables)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if deploymentType == quotedomain.DeploymentTypeFree {
		reference := orderdomain.FreeReferencePrefix + newULID(now)
		order.PaymentReference = &reference
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}
	s.metrics.RecordCheckout(ctx, string(orderType), string(deploymentType))
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("type", string(orderType)),
		zap.String("deployment_type", string(deploymentType)),
	)

	resp := &orderdomain.CheckoutResponse{Quote: result.Response()}
	if !order.RequiresPayment() {
		settlement, err := s.settler.Settle(ctx, *order.PaymentReference, req.UserID)
		if err != nil {
			return nil, err
		}
		resp.Settlement = settlement
		return s.withOrder(ctx, resp, order.ID)
	}

	txn, err := s.gateway.CreateTransaction(ctx, gatewaydomain.CreateRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.Total,
		Currency:       order.Currency,
		Description:    order.Name,
		IdempotencyKey: newULID(now),
	})
	if err != nil {
		s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "create", "error")
		if _, failErr := s.repo.MarkFailed(ctx, s.db, order.ID, "payment_setup_failed", s.clock.Now()); failErr != nil {
			s.log.Error("failed to fail order after gateway error", zap.String("order_id", order.ID.String()), zap.Error(failErr))
		}
		if errors.Is(err, gatewaydomain.ErrInvalidAmount) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", orderdomain.ErrPaymentSetup, err)
	}
	s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "create", "ok")

	if _, err := s.repo.SetPaymentReference(ctx, s.db, order.ID, txn.Reference, s.clock.Now()); err != nil {
		return nil, err
	}
	resp.RequiresPayment = true
	resp.ClientSecret = txn.ClientSecret
	return s.withOrder(ctx, resp, order.ID)
}

func (s *Service) Get(ctx context.Context, id string, userID snowflake.ID) (*orderdomain.Response, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}
	if userID == 0 {
		return nil, orderdomain.ErrInvalidUser
	}
	order, err := s.repo.FindByIDForUser(ctx, s.db, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return toResponse(order), nil
}

func (s *Service) withOrder(ctx context.Context, resp *orderdomain.CheckoutResponse, id snowflake.ID) (*orderdomain.CheckoutResponse, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	resp.Order = *toResponse(order)
	return resp, nil
}

func toResponse(o *orderdomain.Order) *orderdomain.Response {
	return &orderdomain.Response{
		ID:               o.ID,
		Name:             o.Name,
		Status:           o.Status,
		Type:             o.Type,
		PaymentReference: o.PaymentReference,
		ServerID:         o.ServerID,
		NodeID:           o.NodeID,
		TermID:           o.TermID,
		Currency:         o.Currency,
		Total:            o.Total,
		DeploymentType:   o.DeploymentType,
		FailureReason:    o.FailureReason,
		ProcessedAt:      o.ProcessedAt,
		CreatedAt:        o.CreatedAt,
	}
}

func parseType(value orderdomain.Type) (orderdomain.Type, error) {
	switch orderdomain.Type(strings.ToUpper(strings.TrimSpace(string(value)))) {
	case "", orderdomain.TypeNew:
		return orderdomain.TypeNew, nil
	case orderdomain.TypeRenewal:
		return orderdomain.TypeRenewal, nil
	default:
		return "", orderdomain.ErrInvalidType
	}
}

func newULID(now time.Time) string {
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("zero id")
	}
	return id, nil
}

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/panelbilling/internal/billingtest"
	"github.com/smallbiznis/panelbilling/internal/clock"
	"github.com/smallbiznis/panelbilling/internal/config"
	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
	gatewaymocks "github.com/smallbiznis/panelbilling/internal/gateway/mocks"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	noderepository "github.com/smallbiznis/panelbilling/internal/node/repository"
	nodeservice "github.com/smallbiznis/panelbilling/internal/node/service"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	orderrepository "github.com/smallbiznis/panelbilling/internal/order/repository"
	provisioningdomain "github.com/smallbiznis/panelbilling/internal/provisioning/domain"
	provisioningmocks "github.com/smallbiznis/panelbilling/internal/provisioning/mocks"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	quoteservice "github.com/smallbiznis/panelbilling/internal/quote/service"
	settlementservice "github.com/smallbiznis/panelbilling/internal/settlement/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	cat         *billingtest.Catalog
	repo        orderdomain.Repository
	gateway     *gatewaymocks.MockGateway
	provisioner *provisioningmocks.MockProvisioner
	svc         orderdomain.Service
	userID      snowflake.ID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	cat := billingtest.New(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	gw := gatewaymocks.NewMockGateway(ctrl)
	gw.EXPECT().Provider().Return("stripe").AnyTimes()
	prov := provisioningmocks.NewMockProvisioner(ctrl)
	repo := orderrepository.Provide()
	nodeRepo := noderepository.Provide()

	quotes := quoteservice.New(quoteservice.Params{
		Log:         cat.Log,
		Clock:       clk,
		Billing:     billing,
		ResourceSvc: cat.Resources,
		TermSvc:     cat.Terms,
		CouponSvc:   cat.Coupons,
	})
	settler := settlementservice.New(settlementservice.Params{
		DB:          cat.DB,
		Log:         cat.Log,
		Clock:       clk,
		Billing:     billing,
		OrderRepo:   repo,
		NodeRepo:    nodeRepo,
		CouponSvc:   cat.Coupons,
		Gateway:     gw,
		Provisioner: prov,
	})
	svc := New(Params{
		DB:       cat.DB,
		Log:      cat.Log,
		GenID:    cat.Node,
		Clock:    clk,
		Repo:     repo,
		QuoteSvc: quotes,
		NodeSvc:  nodeservice.New(nodeservice.Params{DB: cat.DB, Log: cat.Log, Repo: nodeRepo}),
		Gateway:  gw,
		Settler:  settler,
	})

	return &fixture{
		cat:         cat,
		repo:        repo,
		gateway:     gw,
		provisioner: prov,
		svc:         svc,
		userID:      cat.Node.Generate(),
	}
}

func (f *fixture) request(nodeID snowflake.ID, resource string, quantity int64) orderdomain.CheckoutRequest {
	return orderdomain.CheckoutRequest{
		Request: quotedomain.Request{
			Resources: []quotedomain.Selection{{Resource: resource, Quantity: quantity}},
		},
		UserID: f.userID,
		NodeID: nodeID.String(),
		Name:   "Survival",
	}
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.cat.DB.Raw(`SELECT COUNT(*) FROM orders`).Scan(&count).Error)
	return count
}

func TestCheckoutPaidOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0.01", false)
	nodeID := f.cat.InsertNode(t, "fsn1", true, false, 5)

	f.gateway.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gatewaydomain.CreateRequest) (*gatewaydomain.Transaction, error) {
			assert.True(t, req.Amount.Equal(decimal.RequireFromString("1.00")))
			assert.Equal(t, "USD", req.Currency)
			assert.Equal(t, f.userID, req.UserID)
			assert.NotEmpty(t, req.IdempotencyKey)
			return &gatewaydomain.Transaction{
				Provider:     "stripe",
				Reference:    "pi_123",
				ClientSecret: "pi_123_secret",
				Status:       gatewaydomain.StatusPending,
				Amount:       100,
				Currency:     "usd",
			}, nil
		})

	resp, err := f.svc.Checkout(ctx, f.request(nodeID, "cpu", 100))
	require.NoError(t, err)
	assert.True(t, resp.RequiresPayment)
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
	assert.Nil(t, resp.Settlement)
	assert.Equal(t, orderdomain.StatusPending, resp.Order.Status)
	assert.Equal(t, orderdomain.TypeNew, resp.Order.Type)
	require.NotNil(t, resp.Order.PaymentReference)
	assert.Equal(t, "pi_123", *resp.Order.PaymentReference)
	assert.True(t, resp.Order.Total.Equal(decimal.RequireFromString("1.00")))
	assert.Equal(t, quotedomain.DeploymentTypePaid, resp.Quote.Quote.DeploymentType)

	stored, err := f.repo.FindByID(ctx, f.cat.DB, resp.Order.ID)
	require.NoError(t, err)
	snapshot := stored.Metadata.Data()
	assert.Equal(t, int64(100), snapshot.Resources()["cpu"])
	assert.Equal(t, 30, snapshot.TermDays)
}

func TestCheckoutFreeOrderSettlesImmediately(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0", false)
	nodeID := f.cat.InsertNode(t, "free-1", true, true, 5)

	f.gateway.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Times(0)
	f.provisioner.EXPECT().CreateServer(gomock.Any(), gomock.Any()).
		Return(&provisioningdomain.Server{ID: "srv1", Identifier: "a1b2c3"}, nil)

	resp, err := f.svc.Checkout(ctx, f.request(nodeID, "cpu", 100))
	require.NoError(t, err)
	assert.False(t, resp.RequiresPayment)
	require.NotNil(t, resp.Settlement)
	assert.Equal(t, "srv1", resp.Settlement.ServerID)
	assert.Equal(t, orderdomain.StatusProcessed, resp.Order.Status)
	assert.Equal(t, "Survival (a1b2c3)", resp.Order.Name)
	require.NotNil(t, resp.Order.PaymentReference)
	assert.True(t, strings.HasPrefix(*resp.Order.PaymentReference, orderdomain.FreeReferencePrefix))
}

func TestCheckoutValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0.01", false)
	nodeID := f.cat.InsertNode(t, "fsn1", true, false, 5)

	req := f.request(nodeID, "cpu", 100)
	req.Name = "  "
	_, err := f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidName)

	req = f.request(nodeID, "cpu", 100)
	req.Type = "UPGRADE"
	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidType)

	req = f.request(nodeID, "cpu", 100)
	req.Type = orderdomain.TypeRenewal
	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidServer)

	req = f.request(nodeID, "cpu", 100)
	req.NodeID = "fsn1"
	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidNode)

	req = f.request(nodeID, "cpu", 100)
	req.UserID = 0
	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidUser)

	req = f.request(nodeID, "ram", 100)
	_, err = f.svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, quotedomain.ErrUnknownResource)

	assert.Equal(t, int64(0), f.countOrders(t), "rejected checkouts leave no order behind")
}

func TestCheckoutGatedByNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0.01", false)

	closed := f.cat.InsertNode(t, "closed", false, false, 5)
	_, err := f.svc.Checkout(ctx, f.request(closed, "cpu", 100))
	assert.ErrorIs(t, err, nodedomain.ErrDeploymentNotAllowed)

	full := f.cat.InsertNode(t, "full", true, false, 0)
	_, err = f.svc.Checkout(ctx, f.request(full, "cpu", 100))
	assert.ErrorIs(t, err, nodedomain.ErrDeploymentNotAllowed)

	_, err = f.svc.Checkout(ctx, f.request(f.cat.Node.Generate(), "cpu", 100))
	assert.ErrorIs(t, err, nodedomain.ErrNotFound)

	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestCheckoutRenewalDefaultsName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0.01", false)
	// Renewals do not consume an allocation.
	nodeID := f.cat.InsertNode(t, "full", true, false, 0)

	f.gateway.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).
		Return(&gatewaydomain.Transaction{Reference: "pi_renew", ClientSecret: "s"}, nil)

	req := f.request(nodeID, "cpu", 100)
	req.Type = "renewal"
	req.Name = ""
	req.ServerID = "srv-42"
	resp, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.TypeRenewal, resp.Order.Type)
	assert.Equal(t, "Renewal srv-42", resp.Order.Name)
	require.NotNil(t, resp.Order.ServerID)
	assert.Equal(t, "srv-42", *resp.Order.ServerID)
}

func TestCheckoutGatewayFailureFailsOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0.01", false)
	nodeID := f.cat.InsertNode(t, "fsn1", true, false, 5)

	f.gateway.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).Return(nil, gatewaydomain.ErrGateway)

	_, err := f.svc.Checkout(ctx, f.request(nodeID, "cpu", 100))
	assert.ErrorIs(t, err, orderdomain.ErrPaymentSetup)

	var status, reason string
	require.NoError(t, f.cat.DB.Raw(`SELECT status, failure_reason FROM orders`).Row().Scan(&status, &reason))
	assert.Equal(t, string(orderdomain.StatusFailed), status)
	assert.Equal(t, "payment_setup_failed", reason)
}

func TestGetIsScopedToUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cat.Resource(t, "cpu", "0.01", false)
	nodeID := f.cat.InsertNode(t, "fsn1", true, false, 5)
	f.gateway.EXPECT().CreateTransaction(gomock.Any(), gomock.Any()).
		Return(&gatewaydomain.Transaction{Reference: "pi_1", ClientSecret: "s"}, nil)

	resp, err := f.svc.Checkout(ctx, f.request(nodeID, "cpu", 100))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, resp.Order.ID.String(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, resp.Order.ID, got.ID)

	_, err = f.svc.Get(ctx, resp.Order.ID.String(), f.cat.Node.Generate())
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)

	_, err = f.svc.Get(ctx, "not-an-id", f.userID)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidID)
}

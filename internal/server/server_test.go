package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	"github.com/smallbiznis/panelbilling/internal/observability"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	settlementdomain "github.com/smallbiznis/panelbilling/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQuoteService struct {
	lastReq quotedomain.Request
	result  *quotedomain.Result
	err     error
}

func (f *fakeQuoteService) CalculateQuote(ctx context.Context, req quotedomain.Request) (*quotedomain.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeOrderService struct {
	lastCheckout orderdomain.CheckoutRequest
	checkout     *orderdomain.CheckoutResponse
	lastGetID    string
	lastGetUser  snowflake.ID
	err          error
}

func (f *fakeOrderService) Checkout(ctx context.Context, req orderdomain.CheckoutRequest) (*orderdomain.CheckoutResponse, error) {
	f.lastCheckout = req
	if f.err != nil {
		return nil, f.err
	}
	return f.checkout, nil
}

func (f *fakeOrderService) Get(ctx context.Context, id string, userID snowflake.ID) (*orderdomain.Response, error) {
	f.lastGetID = id
	f.lastGetUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &orderdomain.Response{ID: snowflake.ID(77), Status: orderdomain.StatusPending}, nil
}

type fakeSettlementService struct {
	lastReference string
	lastUser      snowflake.ID
	err           error
}

func (f *fakeSettlementService) Settle(ctx context.Context, reference string, userID snowflake.ID) (*orderdomain.Settlement, error) {
	f.lastReference = reference
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &orderdomain.Settlement{OrderID: snowflake.ID(77), Status: orderdomain.StatusProcessed, Name: "Survival (srv-1)"}, nil
}

type fakeResourceService struct {
	resourcedomain.Service
	lastCurrency string
	created      *resourcedomain.CreateRequest
}

func (f *fakeResourceService) List(ctx context.Context, currency string) ([]resourcedomain.Response, error) {
	f.lastCurrency = currency
	return []resourcedomain.Response{{Key: "ram", Currency: "USD"}}, nil
}

func (f *fakeResourceService) Create(ctx context.Context, req resourcedomain.CreateRequest) (*resourcedomain.Response, error) {
	f.created = &req
	return &resourcedomain.Response{Key: req.Key, Name: req.Name}, nil
}

type testServer struct {
	*Server
	quotes      *fakeQuoteService
	orders      *fakeOrderService
	settlements *fakeSettlementService
	resources   *fakeResourceService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		quotes:      &fakeQuoteService{},
		orders:      &fakeOrderService{},
		settlements: &fakeSettlementService{},
		resources:   &fakeResourceService{},
	}
	ts.Server = &Server{
		engine:        NewEngine(observability.Config{Environment: "test"}),
		log:           zap.NewNop(),
		quoteSvc:      ts.quotes,
		orderSvc:      ts.orders,
		settlementSvc: ts.settlements,
		resourceSvc:   ts.resources,
	}
	ts.registerBillingRoutes()
	ts.registerAdminRoutes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, userID, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	ts.Engine().ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return rec, payload
}

func errorBody(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	body, ok := payload["error"].(map[string]any)
	require.True(t, ok, "missing error body: %v", payload)
	return body
}

func TestQuoteAnonymous(t *testing.T) {
	ts := newTestServer(t)
	ts.quotes.result = &quotedomain.Result{Quote: quotedomain.Quote{
		Currency:           "USD",
		Total:              decimal.RequireFromString("12.5"),
		TotalAfterDiscount: decimal.RequireFromString("12.5"),
		DeploymentType:     quotedomain.DeploymentTypePaid,
	}}

	rec, payload := ts.do(t, http.MethodPost, "/api/billing/quote", "",
		`{"resources":[{"resource":" ram ","quantity":4096}],"coupons":["SUMMER"],"currency":"usd"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, ts.quotes.lastReq.UserID)
	assert.Equal(t, "ram", ts.quotes.lastReq.Resources[0].Resource)
	assert.Equal(t, []string{"SUMMER"}, ts.quotes.lastReq.Coupons)

	data := payload["data"].(map[string]any)
	quote := data["quote"].(map[string]any)
	assert.Equal(t, "paid", quote["deployment_type"])
	assert.Equal(t, []any{}, data["coupons"])
}

func TestQuoteBindsUser(t *testing.T) {
	ts := newTestServer(t)
	ts.quotes.result = &quotedomain.Result{}

	rec, _ := ts.do(t, http.MethodPost, "/api/billing/quote", "42", `{"resources":[{"resource":"ram","quantity":1}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.quotes.lastReq.UserID)
	assert.Equal(t, snowflake.ID(42), *ts.quotes.lastReq.UserID)
}

func TestQuoteRejectsMalformedInput(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodPost, "/api/billing/quote", "", `{"resources":[{"resource":"ram","quantity":1}],"currency":"US"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, payload)
	assert.Equal(t, "validation_error", body["type"])
	first := body["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "currency", first["field"])
	assert.Equal(t, "invalid_currency", first["code"])

	rec, payload = ts.do(t, http.MethodPost, "/api/billing/quote", "", `{"resources":[{"resource":"ram","quantity":1}],"coupons":["bad code!"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorBody(t, payload)["type"])

	rec, _ = ts.do(t, http.MethodPost, "/api/billing/quote", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteDomainValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.quotes.err = quotedomain.ErrEmptySelection

	rec, payload := ts.do(t, http.MethodPost, "/api/billing/quote", "", `{"resources":[]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, payload)
	assert.Equal(t, "empty_selection", body["code"])
	first := body["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "resources", first["field"])
}

func TestCheckoutRequiresUser(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodPost, "/api/billing/checkout", "", `{"node_id":"1","resources":[{"resource":"ram","quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorBody(t, payload)["type"])

	rec, _ = ts.do(t, http.MethodPost, "/api/billing/checkout", "not-a-number", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutPaid(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.checkout = &orderdomain.CheckoutResponse{
		Order:           orderdomain.Response{ID: snowflake.ID(9), Status: orderdomain.StatusPending},
		RequiresPayment: true,
		ClientSecret:    "pi_123_secret",
	}

	rec, payload := ts.do(t, http.MethodPost, "/api/billing/checkout", "42",
		`{"node_id":" 7 ","type":"renewal","server_id":"srv-1","resources":[{"resource":"ram","quantity":1024}],"term":"quarterly"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code, "lower-case type is rejected by binding")

	rec, payload = ts.do(t, http.MethodPost, "/api/billing/checkout", "42",
		`{"node_id":" 7 ","type":"RENEWAL","server_id":"srv-1","resources":[{"resource":"ram","quantity":1024}],"term":"quarterly"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := ts.orders.lastCheckout
	assert.Equal(t, snowflake.ID(42), got.UserID)
	require.NotNil(t, got.Request.UserID)
	assert.Equal(t, snowflake.ID(42), *got.Request.UserID)
	assert.Equal(t, "7", got.NodeID)
	assert.Equal(t, orderdomain.TypeRenewal, got.Type)
	assert.Equal(t, "quarterly", got.Term)

	data := payload["data"].(map[string]any)
	assert.Equal(t, "pi_123_secret", data["client_secret"])
	assert.Equal(t, true, data["requires_payment"])
}

func TestCheckoutFreeSettledImmediately(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.checkout = &orderdomain.CheckoutResponse{
		Order:      orderdomain.Response{ID: snowflake.ID(9), Status: orderdomain.StatusProcessed},
		Settlement: &orderdomain.Settlement{OrderID: snowflake.ID(9), Status: orderdomain.StatusProcessed},
	}

	rec, _ := ts.do(t, http.MethodPost, "/api/billing/checkout", "42", `{"node_id":"7","resources":[{"resource":"ram","quantity":1}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettle(t *testing.T) {
	ts := newTestServer(t)

	rec, payload := ts.do(t, http.MethodPost, "/api/billing/settle/pi_123", "42", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pi_123", ts.settlements.lastReference)
	assert.Equal(t, snowflake.ID(42), ts.settlements.lastUser)
	assert.Equal(t, "PROCESSED", payload["data"].(map[string]any)["status"])
}

func TestSettleErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
		code   string
	}{
		{"duplicate", settlementdomain.ErrAlreadyProcessed, http.StatusConflict, "conflict", "already_processed"},
		{"failed order", settlementdomain.ErrOrderFailed, http.StatusConflict, "conflict", "order_failed"},
		{"not captured", fmt.Errorf("%w: capture declined", settlementdomain.ErrPaymentNotCaptured), http.StatusPaymentRequired, "payment_not_captured", ""},
		{"coupon", &coupondomain.RejectedError{Code: "SUMMER", Reason: coupondomain.ReasonUsageExhausted}, http.StatusUnprocessableEntity, "coupon_rejected", "usage_exhausted"},
		{"node", nodedomain.ErrDeploymentNotAllowed, http.StatusConflict, "conflict", "deployment_not_allowed"},
		{"unknown", orderdomain.ErrNotFound, http.StatusNotFound, "not_found", "order_not_found"},
		{"provisioning", fmt.Errorf("%w: panel returned 500", settlementdomain.ErrProvisioningFailed), http.StatusBadGateway, "upstream_error", "provisioning_failed"},
		{"gateway", settlementdomain.ErrGatewayUnavailable, http.StatusBadGateway, "upstream_error", "gateway_unavailable"},
		{"timeout", fmt.Errorf("%w: %w", settlementdomain.ErrSettlementTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout", ""},
		{"reference", settlementdomain.ErrInvalidReference, http.StatusBadRequest, "validation_error", "invalid_payment_reference"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.settlements.err = tc.err

			rec, payload := ts.do(t, http.MethodPost, "/api/billing/settle/pi_123", "42", "")

			assert.Equal(t, tc.status, rec.Code)
			body := errorBody(t, payload)
			assert.Equal(t, tc.typ, body["type"])
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
			}
		})
	}
}

func TestGetOrderScopedToUser(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/billing/orders/77", "42", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "77", ts.orders.lastGetID)
	assert.Equal(t, snowflake.ID(42), ts.orders.lastGetUser)
}

func TestAdminResources(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/admin/resources?currency=EUR", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, payload := ts.do(t, http.MethodGet, "/api/admin/resources?currency=EUR", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EUR", ts.resources.lastCurrency)
	assert.Len(t, payload["data"], 1)

	rec, _ = ts.do(t, http.MethodGet, "/api/admin/resources?currency=EURO", "1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = ts.do(t, http.MethodPost, "/api/admin/resources", "1", `{"name":"Memory","unit_price":"0.002"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	first := errorBody(t, payload)["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "key", first["field"])
	assert.Equal(t, "invalid_required", first["code"])
	assert.Nil(t, ts.resources.created)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/resources", "1", `{"key":" ram ","name":"Memory","unit_price":"0.002","currency":"USD","step":128}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, ts.resources.created)
	assert.Equal(t, "ram", ts.resources.created.Key)
	assert.True(t, decimal.RequireFromString("0.002").Equal(ts.resources.created.UnitPrice))
}

func TestMapErrorCatalog(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{orderdomain.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("%w: stripe down", orderdomain.ErrPaymentSetup), http.StatusBadGateway},
		{resourcedomain.ErrDuplicateKey, http.StatusConflict},
		{coupondomain.ErrDuplicateCode, http.StatusConflict},
		{coupondomain.ErrInvalidWindow, http.StatusBadRequest},
		{nodedomain.ErrNotFound, http.StatusNotFound},
		{quotedomain.ErrUnknownResource, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}

	typ, code := classifyErrorForLog(settlementdomain.ErrAlreadyProcessed)
	assert.Equal(t, "conflict", typ)
	assert.Equal(t, "already_processed", code)
}

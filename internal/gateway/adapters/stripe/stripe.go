package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg gatewaydomain.AdapterConfig) (gatewaydomain.Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 12 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Adapter{
		apiKey:    apiKey,
		accountID: strings.TrimSpace(cfg.AccountID),
		baseURL:   baseURL,
		client:    client,
	}, nil
}

// Adapter drives Stripe PaymentIntents with manual capture.
type Adapter struct {
	apiKey    string
	accountID string
	baseURL   string
	client    *http.Client
}

type stripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) Provider() string {
	return "stripe"
}

func (a *Adapter) CreateTransaction(ctx context.Context, req gatewaydomain.CreateRequest) (*gatewaydomain.Transaction, error) {
	amount := gatewaydomain.ToMinorUnits(req.Amount, req.Currency)
	if amount <= 0 {
		return nil, gatewaydomain.ErrInvalidAmount
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(amount, 10))
	values.Set("currency", strings.ToLower(strings.TrimSpace(req.Currency)))
	values.Set("capture_method", "manual")
	values.Set("automatic_payment_methods[enabled]", "true")
	values.Set("metadata[order_id]", req.OrderID.String())
	values.Set("metadata[user_id]", req.UserID.String())
	if desc := strings.TrimSpace(req.Description); desc != "" {
		values.Set("description", desc)
	}

	intent, err := a.doRequest(ctx, http.MethodPost, "/v1/payment_intents", values, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return a.toTransaction(intent), nil
}

func (a *Adapter) Retrieve(ctx context.Context, reference string) (*gatewaydomain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, gatewaydomain.ErrTransactionNotFound
	}
	intent, err := a.doRequest(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(reference), nil, "")
	if err != nil {
		return nil, err
	}
	return a.toTransaction(intent), nil
}

func (a *Adapter) Capture(ctx context.Context, reference string) (*gatewaydomain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, gatewaydomain.ErrTransactionNotFound
	}
	intent, err := a.doRequest(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(reference)+"/capture", url.Values{}, "capture:"+reference)
	if err != nil {
		return nil, err
	}
	tx := a.toTransaction(intent)
	if tx.Status != gatewaydomain.StatusCaptured {
		return tx, fmt.Errorf("%w: capture left intent %s", gatewaydomain.ErrGateway, intent.Status)
	}
	return tx, nil
}

func (a *Adapter) toTransaction(intent stripePaymentIntent) *gatewaydomain.Transaction {
	return &gatewaydomain.Transaction{
		Provider:     "stripe",
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       mapStatus(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(intent.Currency)),
	}
}

func mapStatus(status string) gatewaydomain.Status {
	switch strings.TrimSpace(status) {
	case "requires_capture":
		return gatewaydomain.StatusCapturable
	case "succeeded":
		return gatewaydomain.StatusCaptured
	case "canceled":
		return gatewaydomain.StatusCanceled
	default:
		return gatewaydomain.StatusPending
	}
}

func (a *Adapter) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
) (stripePaymentIntent, error) {
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bodyReader)
	if err != nil {
		return stripePaymentIntent{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if a.accountID != "" {
		req.Header.Set("Stripe-Account", a.accountID)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return stripePaymentIntent{}, fmt.Errorf("%w: %v", gatewaydomain.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return stripePaymentIntent{}, gatewaydomain.ErrTransactionNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return stripePaymentIntent{}, fmt.Errorf("%w: status %d", gatewaydomain.ErrGateway, resp.StatusCode)
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return stripePaymentIntent{}, fmt.Errorf("%w: %s", gatewaydomain.ErrGateway, message)
	}

	var intent stripePaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return stripePaymentIntent{}, err
	}
	if intent.ID == "" {
		return stripePaymentIntent{}, errors.New("stripe_response_invalid")
	}
	return intent, nil
}

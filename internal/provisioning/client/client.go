package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/panelbilling/internal/config"
	provisioningdomain "github.com/smallbiznis/panelbilling/internal/provisioning/domain"
	"go.uber.org/zap"
)

// Client talks to the panel's server management API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func New(opts Options, log *zap.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, provisioningdomain.ErrInvalidConfig
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(opts.Token),
		http:    httpClient,
		log:     log.Named("provisioning.client"),
	}, nil
}

// Provide builds the client from application config.
func Provide(cfg config.Config, log *zap.Logger) (provisioningdomain.Provisioner, error) {
	return New(Options{
		BaseURL: cfg.Provisioning.BaseURL,
		Token:   cfg.Provisioning.Token,
		Timeout: cfg.Provisioning.Timeout,
	}, log)
}

type serverEnvelope struct {
	Data provisioningdomain.Server `json:"data"`
}

type renewRequest struct {
	Days int `json:"days"`
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) CreateServer(ctx context.Context, req provisioningdomain.CreateRequest) (*provisioningdomain.Server, error) {
	var out serverEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/servers", req, "order:"+req.OrderID.String(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Data.ID) == "" {
		return nil, fmt.Errorf("%w: empty server id", provisioningdomain.ErrProvisioningFailed)
	}
	return &out.Data, nil
}

func (c *Client) RenewServer(ctx context.Context, serverID string, extraDays int) (*provisioningdomain.Server, error) {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return nil, provisioningdomain.ErrServerNotFound
	}
	var out serverEnvelope
	path := "/api/servers/" + url.PathEscape(serverID) + "/renew"
	if err := c.do(ctx, http.MethodPost, path, renewRequest{Days: extraDays}, "", &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		out.Data.ID = serverID
	}
	return &out.Data, nil
}

func (c *Client) DeleteServer(ctx context.Context, serverID string) error {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return provisioningdomain.ErrServerNotFound
	}
	return c.do(ctx, http.MethodDelete, "/api/servers/"+url.PathEscape(serverID), nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provisioningdomain.ErrProvisioningFailed, err)
	}
	defer resp.Body.Close()

	c.log.Debug("provisioning call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode == http.StatusNotFound {
		return provisioningdomain.ErrServerNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = strings.TrimSpace(apiErr.Error)
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", provisioningdomain.ErrProvisioningFailed, message)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", provisioningdomain.ErrProvisioningFailed, err)
	}
	return nil
}

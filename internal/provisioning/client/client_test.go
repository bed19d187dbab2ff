package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	provisioningdomain "github.com/smallbiznis/panelbilling/internal/provisioning/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Token: "secret", HTTPClient: srv.Client()}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCreateServer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/servers", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "order:99", r.Header.Get("Idempotency-Key"))

		var body provisioningdomain.CreateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(2048), body.Resources["memory"])
		assert.Equal(t, "paid", body.DeploymentType)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "srv_1", "identifier": "a1b2c3d4", "name": "Survival"},
		})
	})

	server, err := c.CreateServer(context.Background(), provisioningdomain.CreateRequest{
		OrderID:        99,
		Name:           "Survival",
		DeploymentType: "paid",
		Resources:      map[string]int64{"memory": 2048},
	})
	require.NoError(t, err)
	assert.Equal(t, "srv_1", server.ID)
	assert.Equal(t, "a1b2c3d4", server.Identifier)
}

func TestRenewServer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/servers/srv_1/renew", r.URL.Path)
		var body map[string]int
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 90, body["days"])
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"identifier": "a1b2c3d4"}})
	})

	server, err := c.RenewServer(context.Background(), "srv_1", 90)
	require.NoError(t, err)
	assert.Equal(t, "srv_1", server.ID)
}

func TestDeleteServer(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/servers/srv_1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteServer(context.Background(), "srv_1"))
	assert.True(t, called)
}

func TestProvisioningErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/servers/missing/renew" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"node offline"}`))
	})

	_, err := c.RenewServer(context.Background(), "missing", 30)
	assert.ErrorIs(t, err, provisioningdomain.ErrServerNotFound)

	_, err = c.CreateServer(context.Background(), provisioningdomain.CreateRequest{OrderID: 1})
	require.ErrorIs(t, err, provisioningdomain.ErrProvisioningFailed)
	assert.Contains(t, err.Error(), "node offline")
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{}, nil)
	assert.ErrorIs(t, err, provisioningdomain.ErrInvalidConfig)
}

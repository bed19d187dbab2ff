package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=provisioner.go -destination=../mocks/mock_provisioner.go -package=mocks

type Server struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

// CreateRequest is the fully resolved bundle a new server is built from.
type CreateRequest struct {
	OrderID        snowflake.ID      `json:"order_id"`
	UserID         snowflake.ID      `json:"user_id"`
	NodeID         snowflake.ID      `json:"node_id"`
	ProductID      *snowflake.ID     `json:"product_id,omitempty"`
	Name           string            `json:"name"`
	Storefront     string            `json:"storefront,omitempty"`
	TermID         *snowflake.ID     `json:"term_id,omitempty"`
	DurationDays   int               `json:"duration_days"`
	DeploymentType string            `json:"deployment_type"`
	Resources      map[string]int64  `json:"resources"`
	Coupons        []string          `json:"coupons,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

type Provisioner interface {
	CreateServer(ctx context.Context, req CreateRequest) (*Server, error)
	RenewServer(ctx context.Context, serverID string, extraDays int) (*Server, error)
	DeleteServer(ctx context.Context, serverID string) error
}

var (
	ErrProvisioningFailed = errors.New("provisioning_failed")
	ErrServerNotFound     = errors.New("server_not_found")
	ErrInvalidConfig      = errors.New("invalid_provisioning_config")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
)

type Service interface {
	// Gate loads the node and checks it can host the order.
	Gate(ctx context.Context, nodeID snowflake.ID, deploymentType quotedomain.DeploymentType, needsAllocation bool) (*Node, error)
}

var (
	ErrDeploymentNotAllowed = errors.New("deployment_not_allowed")
	ErrNotFound             = errors.New("node_not_found")
)

package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
)

// Node is a game-server host. Rows are owned by the panel; billing only reads them.
type Node struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Name            string       `json:"name"`
	Deployable      bool         `json:"deployable"`
	DeployableFree  bool         `json:"deployable_free"`
	FreeAllocations int64        `json:"free_allocations"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (Node) TableName() string { return "nodes" }

// Admits checks whether an order of deploymentType may be placed on n.
// needsAllocation is set for orders that create a new server.
func (n Node) Admits(deploymentType quotedomain.DeploymentType, needsAllocation bool) error {
	if deploymentType == quotedomain.DeploymentTypeFree {
		if !n.DeployableFree {
			return fmt.Errorf("%w: node does not accept free servers", ErrDeploymentNotAllowed)
		}
	} else if !n.Deployable {
		return fmt.Errorf("%w: node does not accept %s servers", ErrDeploymentNotAllowed, deploymentType)
	}
	if needsAllocation && n.FreeAllocations <= 0 {
		return fmt.Errorf("%w: node has no free allocation", ErrDeploymentNotAllowed)
	}
	return nil
}

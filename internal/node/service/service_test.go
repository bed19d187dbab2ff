package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/panelbilling/internal/billingtest"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	"github.com/smallbiznis/panelbilling/internal/node/repository"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGate(t *testing.T) {
	ctx := context.Background()
	c := billingtest.New(t)
	svc := New(Params{DB: c.DB, Log: zap.NewNop(), Repo: repository.Provide()})

	paid := c.InsertNode(t, "eu-1", true, false, 3)
	node, err := svc.Gate(ctx, paid, quotedomain.DeploymentTypePaid, true)
	require.NoError(t, err)
	assert.Equal(t, "eu-1", node.Name)
	assert.Equal(t, int64(3), node.FreeAllocations)

	_, err = svc.Gate(ctx, paid, quotedomain.DeploymentTypeFree, true)
	assert.ErrorIs(t, err, nodedomain.ErrDeploymentNotAllowed)

	_, err = svc.Gate(ctx, c.Node.Generate(), quotedomain.DeploymentTypePaid, true)
	assert.ErrorIs(t, err, nodedomain.ErrNotFound)
}

package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo nodedomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo nodedomain.Repository
}

func New(p Params) nodedomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("node.service"),
		repo: p.Repo,
	}
}

func (s *Service) Gate(ctx context.Context, nodeID snowflake.ID, deploymentType quotedomain.DeploymentType, needsAllocation bool) (*nodedomain.Node, error) {
	node, err := s.repo.FindByID(ctx, s.db, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nodedomain.ErrNotFound
	}
	if err := node.Admits(deploymentType, needsAllocation); err != nil {
		s.log.Info("node rejected deployment",
			zap.String("node_id", nodeID.String()),
			zap.String("deployment_type", string(deploymentType)),
			zap.Error(err),
		)
		return nil, err
	}
	return node, nil
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() nodedomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*nodedomain.Node, error) {
	var node nodedomain.Node
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, deployable, deployable_free, free_allocations, created_at
		 FROM nodes
		 WHERE id = ?`,
		id,
	).Scan(&node).Error
	if err != nil {
		return nil, err
	}
	if node.ID == 0 {
		return nil, nil
	}
	return &node, nil
}

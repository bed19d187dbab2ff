package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUser(ctx context.Context, db *gorm.DB, id, userID snowflake.ID) (*Order, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string, userID snowflake.ID) (*Order, error)
	FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string, userID snowflake.ID) (*Order, error)
	// ListStalePending returns PENDING orders with a payment reference that
	// have not changed since before, oldest first.
	ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Order, error)

	// The transitions below only touch PENDING orders and report whether a row changed.
	SetPaymentReference(ctx context.Context, db *gorm.DB, id snowflake.ID, reference string, now time.Time) (bool, error)
	// RecordProvisioned stores the server of a PENDING order once; later calls
	// leave the first server in place and report false.
	RecordProvisioned(ctx context.Context, db *gorm.DB, id snowflake.ID, serverID, identifier string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, name, serverID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
}

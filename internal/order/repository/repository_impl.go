package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

const orderColumns = `id, name, payment_reference, user_id, product_id, server_id, server_identifier, provisioned_at, status, type,
	storefront, term_id, node_id, currency, total, deployment_type, metadata,
	failure_reason, processed_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.Name,
		order.PaymentReference,
		order.UserID,
		order.ProductID,
		order.ServerID,
		order.ServerIdentifier,
		order.ProvisionedAt,
		order.Status,
		order.Type,
		order.Storefront,
		order.TermID,
		order.NodeID,
		order.Currency,
		order.Total,
		order.DeploymentType,
		order.Metadata,
		order.FailureReason,
		order.ProcessedAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *repo) FindByIDForUser(ctx context.Context, db *gorm.DB, id, userID snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE id = ? AND user_id = ?`, id, userID)
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string, userID snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = ? AND user_id = ?`, reference, userID)
}

func (r *repo) FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string, userID snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db,
		`SELECT `+orderColumns+` FROM orders
		 WHERE payment_reference = ? AND user_id = ?
		 FOR UPDATE`,
		reference, userID,
	)
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ? AND payment_reference IS NOT NULL AND updated_at < ?
		 ORDER BY updated_at, id
		 LIMIT ?`,
		orderdomain.StatusPending, before, limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) SetPaymentReference(ctx context.Context, db *gorm.DB, id snowflake.ID, reference string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_reference = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND payment_reference IS NULL`,
		reference, now, id, orderdomain.StatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) RecordProvisioned(ctx context.Context, db *gorm.DB, id snowflake.ID, serverID, identifier string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET server_id = ?, server_identifier = ?, provisioned_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND provisioned_at IS NULL`,
		serverID, identifier, now, now, id, orderdomain.StatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, name, serverID string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, name = ?, server_id = ?, failure_reason = NULL, processed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		orderdomain.StatusProcessed, name, serverID, now, now, id, orderdomain.StatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		orderdomain.StatusFailed, reason, now, id, orderdomain.StatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*orderdomain.Order, error) {
	var order orderdomain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&order).Error; err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

type Type string

const (
	TypeNew     Type = "NEW"
	TypeRenewal Type = "RENEWAL"
)

// FreeReferencePrefix marks orders settled without a gateway transaction.
const FreeReferencePrefix = "free_"

type Order struct {
	ID               snowflake.ID                 `json:"id" gorm:"primaryKey"`
	Name             string                       `json:"name" gorm:"type:text;not null"`
	PaymentReference *string                      `json:"payment_reference,omitempty" gorm:"type:text;uniqueIndex"`
	UserID           snowflake.ID                 `json:"user_id" gorm:"not null;index"`
	ProductID        *snowflake.ID                `json:"product_id,omitempty"`
	ServerID         *string                      `json:"server_id,omitempty" gorm:"type:text"`
	ServerIdentifier *string                      `json:"server_identifier,omitempty" gorm:"type:text"`
	ProvisionedAt    *time.Time                   `json:"provisioned_at,omitempty"`
	Status           Status                       `json:"status" gorm:"type:text;not null"`
	Type             Type                         `json:"type" gorm:"type:text;not null"`
	Storefront       string                       `json:"storefront" gorm:"type:text;not null;default:''"`
	TermID           *snowflake.ID                `json:"term_id,omitempty"`
	NodeID           snowflake.ID                 `json:"node_id" gorm:"not null"`
	Currency         string                       `json:"currency" gorm:"type:text;not null"`
	Total            decimal.Decimal              `json:"total" gorm:"type:numeric;not null"`
	DeploymentType   quotedomain.DeploymentType   `json:"deployment_type" gorm:"type:text;not null"`
	Metadata         datatypes.JSONType[Snapshot] `json:"metadata" gorm:"type:jsonb"`
	FailureReason    *string                      `json:"failure_reason,omitempty" gorm:"type:text"`
	ProcessedAt      *time.Time                   `json:"processed_at,omitempty"`
	CreatedAt        time.Time                    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }

// Terminal reports whether the order can no longer change state.
func (o Order) Terminal() bool {
	return o.Status == StatusProcessed || o.Status == StatusFailed
}

// Provisioned reports whether an earlier settlement attempt already created or
// renewed the server.
func (o Order) Provisioned() bool {
	return o.ProvisionedAt != nil && o.ServerID != nil && *o.ServerID != ""
}

// RequiresPayment reports whether settlement goes through the gateway.
func (o Order) RequiresPayment() bool {
	return o.DeploymentType != quotedomain.DeploymentTypeFree
}

// Snapshot is everything settlement needs to replay the order without the
// original request.
type Snapshot struct {
	Lines          []SnapshotLine    `json:"lines"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Multiplier     decimal.Decimal   `json:"multiplier"`
	Discount       decimal.Decimal   `json:"discount"`
	Total          decimal.Decimal   `json:"total"`
	Coupons        []SnapshotCoupon  `json:"coupons,omitempty"`
	TermID         *snowflake.ID     `json:"term_id,omitempty"`
	TermDays       int               `json:"term_days"`
	DeploymentType string            `json:"deployment_type"`
	Variables      map[string]string `json:"variables,omitempty"`
}

type SnapshotLine struct {
	Resource  string          `json:"resource"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type SnapshotCoupon struct {
	ID       snowflake.ID    `json:"id"`
	Code     string          `json:"code"`
	Type     string          `json:"type"`
	Discount decimal.Decimal `json:"discount"`
}

// Resources returns quantities keyed by resource.
func (s Snapshot) Resources() map[string]int64 {
	out := make(map[string]int64, len(s.Lines))
	for _, line := range s.Lines {
		out[line.Resource] = line.Quantity
	}
	return out
}

func (s Snapshot) CouponCodes() []string {
	if len(s.Coupons) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Coupons))
	for _, c := range s.Coupons {
		out = append(out, c.Code)
	}
	return out
}

// SnapshotFromQuote freezes a computed quote into order metadata.
func SnapshotFromQuote(result *quotedomain.Result, variables map[string]string) Snapshot {
	q := result.Quote
	snap := Snapshot{
		Lines:          make([]SnapshotLine, 0, len(result.Lines)),
		Subtotal:       q.Subtotal,
		Multiplier:     q.Multiplier,
		Discount:       q.Discount,
		Total:          q.TotalAfterDiscount,
		TermID:         q.TermID,
		TermDays:       q.TermDays,
		DeploymentType: string(q.DeploymentType),
		Variables:      variables,
	}
	for _, line := range result.Lines {
		snap.Lines = append(snap.Lines, SnapshotLine{
			Resource:  line.Key,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	for _, c := range result.Coupons {
		snap.Coupons = append(snap.Coupons, SnapshotCoupon{
			ID:       c.ID,
			Code:     c.Code,
			Type:     string(c.Type),
			Discount: c.Discount,
		})
	}
	return snap
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"github.com/smallbiznis/panelbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     coupondomain.Repository
	TermRepo termdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     coupondomain.Repository
	termRepo termdomain.Repository
}

func New(p Params) coupondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("coupon.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		termRepo: p.TermRepo,
	}
}

func (s *Service) Create(ctx context.Context, req coupondomain.CreateRequest) (*coupondomain.Response, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, coupondomain.ErrInvalidCode
	}

	now := time.Now().UTC()
	entity := &coupondomain.Coupon{
		ID:               s.genID.Generate(),
		Code:             code,
		Type:             coupondomain.CouponType(strings.ToLower(strings.TrimSpace(string(req.Type)))),
		ResourceQuantity: req.ResourceQuantity,
		DurationDays:     req.DurationDays,
		MaxUsages:        req.MaxUsages,
		PerUserLimit:     req.PerUserLimit,
		IsActive:         true,
		StartsAt:         req.StartsAt,
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Value != nil {
		entity.Value = decimal.NewNullDecimal(*req.Value)
	}
	if req.Percentage != nil {
		entity.Percentage = decimal.NewNullDecimal(*req.Percentage)
	}
	if req.ResourceKey != nil {
		key := strings.ToLower(strings.TrimSpace(*req.ResourceKey))
		entity.ResourceKey = &key
	}
	if req.IsActive != nil {
		entity.IsActive = *req.IsActive
	}

	if _, err := entity.Discount(); err != nil {
		return nil, err
	}
	if err := validateLimits(entity); err != nil {
		return nil, err
	}

	if termID := strings.TrimSpace(req.TermID); termID != "" {
		id, err := parseID(termID)
		if err != nil {
			return nil, coupondomain.ErrInvalidTerm
		}
		term, err := s.termRepo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if term == nil {
			return nil, coupondomain.ErrInvalidTerm
		}
		entity.TermID = &term.ID
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, coupondomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("coupon created",
		zap.String("coupon_id", entity.ID.String()),
		zap.String("type", string(entity.Type)),
	)
	return toResponse(entity), nil
}

func (s *Service) Update(ctx context.Context, id string, patch coupondomain.Patch) (*coupondomain.Response, error) {
	couponID, err := parseID(id)
	if err != nil {
		return nil, coupondomain.ErrInvalidID
	}

	var updated *coupondomain.Coupon
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := s.repo.FindByIDForUpdate(ctx, tx, couponID)
		if err != nil {
			return err
		}
		if entity == nil {
			return coupondomain.ErrNotFound
		}

		if patch.IsActive != nil {
			entity.IsActive = *patch.IsActive
		}
		if patch.ClearMaxUsages {
			entity.MaxUsages = nil
		} else if patch.MaxUsages != nil {
			value := *patch.MaxUsages
			entity.MaxUsages = &value
		}
		if patch.ClearPerUserLimit {
			entity.PerUserLimit = nil
		} else if patch.PerUserLimit != nil {
			value := *patch.PerUserLimit
			entity.PerUserLimit = &value
		}
		if patch.StartsAt != nil {
			value := *patch.StartsAt
			entity.StartsAt = &value
		}
		if patch.ClearExpiresAt {
			entity.ExpiresAt = nil
		} else if patch.ExpiresAt != nil {
			value := *patch.ExpiresAt
			entity.ExpiresAt = &value
		}
		if err := validateLimits(entity); err != nil {
			return err
		}
		entity.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, tx, entity); err != nil {
			return err
		}
		updated = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toResponse(updated), nil
}

func (s *Service) List(ctx context.Context) ([]coupondomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]coupondomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Check(ctx context.Context, req coupondomain.CheckRequest) ([]coupondomain.Coupon, error) {
	codes, err := DedupeCodes(req.Codes)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	items, err := s.repo.FindByCodes(ctx, s.db, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]coupondomain.Coupon, len(items))
	for _, item := range items {
		byCode[item.Code] = item
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ordered := make([]coupondomain.Coupon, 0, len(codes))
	for _, code := range codes {
		coupon, ok := byCode[code]
		if !ok {
			return nil, coupondomain.ErrNotFound
		}
		var userRedemptions int64
		if req.UserID != nil && coupon.PerUserLimit != nil {
			userRedemptions, err = s.repo.CountUserRedemptions(ctx, s.db, coupon.ID, *req.UserID)
			if err != nil {
				return nil, err
			}
		}
		if err := coupon.Validate(now, req.TermID, userRedemptions); err != nil {
			return nil, err
		}
		ordered = append(ordered, coupon)
	}
	return ordered, nil
}

func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, req coupondomain.RedeemRequest) (*coupondomain.Redemption, error) {
	coupon, err := s.repo.FindByIDForUpdate(ctx, tx, req.CouponID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, coupondomain.ErrNotFound
	}

	var userRedemptions int64
	if req.UserID != nil && coupon.PerUserLimit != nil {
		userRedemptions, err = s.repo.CountUserRedemptions(ctx, tx, coupon.ID, *req.UserID)
		if err != nil {
			return nil, err
		}
	}
	if err := coupon.Validate(req.Now, req.TermID, userRedemptions); err != nil {
		return nil, err
	}

	redemption := &coupondomain.Redemption{
		ID:        s.genID.Generate(),
		CouponID:  coupon.ID,
		UserID:    req.UserID,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		CreatedAt: req.Now,
	}
	inserted, err := s.repo.InsertRedemption(ctx, tx, redemption)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, coupondomain.ErrAlreadyRedeemed
	}

	ok, err := s.repo.IncrementUsage(ctx, tx, coupon.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &coupondomain.RejectedError{Code: coupon.Code, Reason: coupondomain.ReasonUsageExhausted}
	}
	return redemption, nil
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DedupeCodes normalizes codes and drops repeats, keeping the first occurrence.
func DedupeCodes(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := NormalizeCode(raw)
		if code == "" {
			return nil, coupondomain.ErrInvalidCode
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

func validateLimits(c *coupondomain.Coupon) error {
	if c.MaxUsages != nil && *c.MaxUsages <= 0 {
		return coupondomain.ErrInvalidLimit
	}
	if c.PerUserLimit != nil && *c.PerUserLimit <= 0 {
		return coupondomain.ErrInvalidLimit
	}
	if c.StartsAt != nil && c.ExpiresAt != nil && !c.ExpiresAt.After(*c.StartsAt) {
		return coupondomain.ErrInvalidWindow
	}
	return nil
}

func toResponse(c *coupondomain.Coupon) *coupondomain.Response {
	resp := &coupondomain.Response{
		ID:               c.ID,
		Code:             c.Code,
		Type:             c.Type,
		ResourceKey:      c.ResourceKey,
		ResourceQuantity: c.ResourceQuantity,
		DurationDays:     c.DurationDays,
		MaxUsages:        c.MaxUsages,
		UsageCount:       c.UsageCount,
		PerUserLimit:     c.PerUserLimit,
		TermID:           c.TermID,
		IsActive:         c.IsActive,
		StartsAt:         c.StartsAt,
		ExpiresAt:        c.ExpiresAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.Value.Valid {
		value := c.Value.Decimal
		resp.Value = &value
	}
	if c.Percentage.Valid {
		percentage := c.Percentage.Decimal
		resp.Percentage = &percentage
	}
	return resp
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("zero id")
	}
	return id, nil
}

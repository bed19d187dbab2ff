package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	"github.com/smallbiznis/panelbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  resourcedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  resourcedomain.Repository
}

func New(p Params) resourcedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("resource.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req resourcedomain.CreateRequest) (*resourcedomain.Response, error) {
	key := normalizeKey(req.Key)
	if key == "" {
		return nil, resourcedomain.ErrInvalidKey
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, resourcedomain.ErrInvalidName
	}
	currency, err := parseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	step := req.Step
	if step == 0 {
		step = 1
	}
	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}

	now := time.Now().UTC()
	entity := &resourcedomain.Resource{
		ID:              s.genID.Generate(),
		Key:             key,
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		UnitPrice:       req.UnitPrice,
		Currency:        currency,
		MinQuantity:     req.MinQuantity,
		MaxQuantity:     req.MaxQuantity,
		DefaultQuantity: req.DefaultQuantity,
		Step:            step,
		Visible:         visible,
		Metered:         req.Metered,
		SortOrder:       req.SortOrder,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := entity.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, resourcedomain.ErrDuplicateKey
		}
		return nil, err
	}

	s.log.Info("resource created",
		zap.String("resource_id", entity.ID.String()),
		zap.String("key", entity.Key),
		zap.String("currency", entity.Currency),
	)
	return toResponse(entity, nil), nil
}

func (s *Service) Update(ctx context.Context, id string, patch resourcedomain.Patch) (*resourcedomain.Response, error) {
	resourceID, err := parseID(id)
	if err != nil {
		return nil, resourcedomain.ErrInvalidID
	}

	var updated *resourcedomain.Resource
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity, err := s.repo.FindByIDForUpdate(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if entity == nil {
			return resourcedomain.ErrNotFound
		}

		if err := applyPatch(entity, patch); err != nil {
			return err
		}
		if err := entity.Validate(); err != nil {
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

	rules, err := s.repo.ListScalingRules(ctx, s.db, []snowflake.ID{updated.ID})
	if err != nil {
		return nil, err
	}
	return toResponse(updated, rules), nil
}

func applyPatch(entity *resourcedomain.Resource, patch resourcedomain.Patch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return resourcedomain.ErrInvalidName
		}
		entity.Name = name
	}
	if patch.Description != nil {
		entity.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.UnitPrice != nil {
		entity.UnitPrice = *patch.UnitPrice
	}
	if patch.MinQuantity != nil {
		entity.MinQuantity = *patch.MinQuantity
	}
	if patch.ClearMaxQuantity {
		entity.MaxQuantity = nil
	} else if patch.MaxQuantity != nil {
		value := *patch.MaxQuantity
		entity.MaxQuantity = &value
	}
	if patch.DefaultQuantity != nil {
		entity.DefaultQuantity = *patch.DefaultQuantity
	}
	if patch.Step != nil {
		entity.Step = *patch.Step
	}
	if patch.Visible != nil {
		entity.Visible = *patch.Visible
	}
	if patch.Metered != nil {
		entity.Metered = *patch.Metered
	}
	if patch.SortOrder != nil {
		entity.SortOrder = *patch.SortOrder
	}
	return nil
}

func (s *Service) List(ctx context.Context, currency string) ([]resourcedomain.Response, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency != "" && len(currency) != 3 {
		return nil, resourcedomain.ErrInvalidCurrency
	}

	items, err := s.repo.List(ctx, s.db, currency)
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
	}
	rules, err := s.repo.ListScalingRules(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byResource := groupRules(rules)

	resp := make([]resourcedomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i], byResource[items[i].ID]))
	}
	return resp, nil
}

func (s *Service) AddScalingRule(ctx context.Context, resourceID string, req resourcedomain.CreateScalingRuleRequest) (*resourcedomain.ScalingRuleResponse, error) {
	id, err := parseID(resourceID)
	if err != nil {
		return nil, resourcedomain.ErrInvalidID
	}
	if req.Threshold < 0 {
		return nil, resourcedomain.ErrInvalidThreshold
	}
	mode, err := parseScalingMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.Factor.IsNegative() {
		return nil, resourcedomain.ErrInvalidFactor
	}

	entity, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, resourcedomain.ErrNotFound
	}

	now := time.Now().UTC()
	rule := &resourcedomain.ScalingRule{
		ID:         s.genID.Generate(),
		ResourceID: entity.ID,
		Threshold:  req.Threshold,
		Mode:       mode,
		Factor:     req.Factor,
		Label:      strings.TrimSpace(req.Label),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inserted, err := s.repo.InsertScalingRule(ctx, s.db, rule)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, resourcedomain.ErrDuplicateScalingRule
	}

	resp := toRuleResponse(rule)
	return &resp, nil
}

func (s *Service) Catalog(ctx context.Context, currency string, keys []string) (map[string]resourcedomain.PricedResource, error) {
	currency, err := parseCurrency(currency)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		normalized = append(normalized, normalizeKey(key))
	}

	items, err := s.repo.FindVisibleByKeys(ctx, s.db, currency, normalized)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
	}
	rules, err := s.repo.ListScalingRules(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byResource := groupRules(rules)

	catalog := make(map[string]resourcedomain.PricedResource, len(items))
	for i := range items {
		catalog[items[i].Key] = resourcedomain.PricedResource{
			Resource: items[i],
			Rules:    byResource[items[i].ID],
		}
	}
	return catalog, nil
}

func (s *Service) ResolveUnitPrice(ctx context.Context, key, currency string, quantity int64) (decimal.Decimal, error) {
	if quantity < 0 {
		return decimal.Zero, resourcedomain.ErrInvalidQuantity
	}
	key = normalizeKey(key)
	catalog, err := s.Catalog(ctx, currency, []string{key})
	if err != nil {
		return decimal.Zero, err
	}
	priced, ok := catalog[key]
	if !ok {
		return decimal.Zero, resourcedomain.ErrNotFound
	}
	return priced.UnitPrice(quantity), nil
}

func groupRules(rules []resourcedomain.ScalingRule) map[snowflake.ID][]resourcedomain.ScalingRule {
	grouped := make(map[snowflake.ID][]resourcedomain.ScalingRule)
	for _, rule := range rules {
		grouped[rule.ResourceID] = append(grouped[rule.ResourceID], rule)
	}
	return grouped
}

func toResponse(r *resourcedomain.Resource, rules []resourcedomain.ScalingRule) *resourcedomain.Response {
	resp := &resourcedomain.Response{
		ID:              r.ID,
		Key:             r.Key,
		Name:            r.Name,
		Description:     r.Description,
		UnitPrice:       r.UnitPrice,
		Currency:        r.Currency,
		MinQuantity:     r.MinQuantity,
		MaxQuantity:     r.MaxQuantity,
		DefaultQuantity: r.DefaultQuantity,
		Step:            r.Step,
		Visible:         r.Visible,
		Metered:         r.Metered,
		SortOrder:       r.SortOrder,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	for i := range rules {
		resp.ScalingRules = append(resp.ScalingRules, toRuleResponse(&rules[i]))
	}
	return resp
}

func toRuleResponse(rule *resourcedomain.ScalingRule) resourcedomain.ScalingRuleResponse {
	return resourcedomain.ScalingRuleResponse{
		ID:         rule.ID,
		ResourceID: rule.ResourceID,
		Threshold:  rule.Threshold,
		Mode:       rule.Mode,
		Factor:     rule.Factor,
		Label:      rule.Label,
	}
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

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func parseCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if len(currency) != 3 {
		return "", resourcedomain.ErrInvalidCurrency
	}
	return currency, nil
}

func parseScalingMode(value resourcedomain.ScalingMode) (resourcedomain.ScalingMode, error) {
	switch strings.ToLower(strings.TrimSpace(string(value))) {
	case string(resourcedomain.ScalingModeMultiplier):
		return resourcedomain.ScalingModeMultiplier, nil
	case string(resourcedomain.ScalingModeSurcharge):
		return resourcedomain.ScalingModeSurcharge, nil
	default:
		return "", resourcedomain.ErrInvalidScalingMode
	}
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/panelbilling/internal/clock"
	"github.com/smallbiznis/panelbilling/internal/config"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	"github.com/smallbiznis/panelbilling/internal/observability/metrics"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Billing     *config.BillingConfigHolder
	ResourceSvc resourcedomain.Service
	TermSvc     termdomain.Service
	CouponSvc   coupondomain.Service
	Metrics     *metrics.Metrics           `optional:"true"`
	Settlement  *metrics.SettlementMetrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	billing     *config.BillingConfigHolder
	resourceSvc resourcedomain.Service
	termSvc     termdomain.Service
	couponSvc   coupondomain.Service
	metrics     *metrics.Metrics
	timings     *metrics.SettlementMetrics
}

func New(p Params) quotedomain.Service {
	return &Service{
		log:         p.Log.Named("quote.service"),
		clock:       p.Clock,
		billing:     p.Billing,
		resourceSvc: p.ResourceSvc,
		termSvc:     p.TermSvc,
		couponSvc:   p.CouponSvc,
		metrics:     p.Metrics,
		timings:     p.Settlement,
	}
}

func (s *Service) CalculateQuote(ctx context.Context, req quotedomain.Request) (*quotedomain.Result, error) {
	start := time.Now()
	cfg := s.billing.Get()

	selections, err := normalizeSelections(req.Resources)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = cfg.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, quotedomain.ErrInvalidCurrency
	}

	snap := cfg.SnapToStep
	if req.Options != nil && req.Options.SnapToStep != nil {
		snap = *req.Options.SnapToStep
	}

	keys := make([]string, 0, len(selections))
	for _, sel := range selections {
		keys = append(keys, sel.Resource)
	}
	catalog, err := s.resourceSvc.Catalog(ctx, currency, keys)
	if err != nil {
		return nil, err
	}

	lines := make([]quotedomain.Line, 0, len(selections))
	subtotal := decimal.Zero
	for _, sel := range selections {
		priced, ok := catalog[sel.Resource]
		if !ok {
			return nil, quotedomain.ErrUnknownResource
		}
		if sel.Quantity == 0 {
			continue
		}
		quantity := sel.Quantity
		if snap {
			quantity = priced.Resource.SnapToStep(quantity)
		}
		unitPrice := priced.UnitPrice(quantity)
		line := quotedomain.Line{
			Key:       sel.Resource,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Total:     unitPrice.Mul(decimal.NewFromInt(quantity)),
			Metered:   priced.Resource.Metered,
		}
		subtotal = subtotal.Add(line.Total)
		lines = append(lines, line)
	}

	term, err := s.resolveTerm(ctx, req.Term)
	if err != nil {
		return nil, err
	}
	multiplier := termdomain.MultiplierFor(term)
	termDays := termdomain.DurationDaysFor(term, cfg.DurationBaseDays)
	total := subtotal.Mul(multiplier)

	coupons, err := s.couponSvc.Check(ctx, coupondomain.CheckRequest{
		Codes:  req.Coupons,
		UserID: req.UserID,
		TermID: termIDOf(term),
		Now:    s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	running := coupondomain.RunningQuote{
		Lines:      toCouponLines(lines),
		Multiplier: multiplier,
		TermDays:   termDays,
		Total:      total,
	}
	running, applied, discount, err := quotedomain.ApplyCoupons(running, coupons)
	if err != nil {
		return nil, err
	}

	result := &quotedomain.Result{
		Lines:   lines,
		Coupons: applied,
		Term:    term,
	}
	after := running.Total
	if after.IsNegative() {
		after = decimal.Zero
	}
	result.Quote = quotedomain.Quote{
		Resources:          toResourceMap(lines),
		Currency:           currency,
		Subtotal:           subtotal,
		Multiplier:         multiplier,
		Discount:           discount,
		Total:              total,
		TotalAfterDiscount: after,
		DeploymentType:     quotedomain.Classify(after, result.HasMetered()),
		TermID:             termIDOf(term),
		TermDays:           termDays,
	}

	s.metrics.RecordQuote(ctx, string(result.Quote.DeploymentType))
	s.timings.ObserveQuote(time.Since(start))
	s.log.Debug("quote calculated",
		zap.Int("lines", len(lines)),
		zap.Int("coupons", len(applied)),
		zap.String("deployment_type", string(result.Quote.DeploymentType)),
	)
	return result, nil
}

func (s *Service) resolveTerm(ctx context.Context, identifier string) (*termdomain.Term, error) {
	if strings.TrimSpace(identifier) == "" {
		return s.termSvc.DefaultTerm(ctx)
	}
	term, err := s.termSvc.TermByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !term.Active {
		return nil, termdomain.ErrInactive
	}
	return term, nil
}

// normalizeSelections lower-cases keys and rejects negatives and repeats.
func normalizeSelections(in []quotedomain.Selection) ([]quotedomain.Selection, error) {
	if len(in) == 0 {
		return nil, quotedomain.ErrEmptySelection
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]quotedomain.Selection, 0, len(in))
	for _, sel := range in {
		key := strings.ToLower(strings.TrimSpace(sel.Resource))
		if key == "" {
			return nil, quotedomain.ErrInvalidResource
		}
		if sel.Quantity < 0 {
			return nil, quotedomain.ErrInvalidQuantity
		}
		if _, ok := seen[key]; ok {
			return nil, quotedomain.ErrDuplicateResource
		}
		seen[key] = struct{}{}
		out = append(out, quotedomain.Selection{Resource: key, Quantity: sel.Quantity})
	}
	return out, nil
}

func toCouponLines(lines []quotedomain.Line) []coupondomain.QuoteLine {
	out := make([]coupondomain.QuoteLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, coupondomain.QuoteLine{
			ResourceKey: line.Key,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Total:       line.Total,
		})
	}
	return out
}

func toResourceMap(lines []quotedomain.Line) map[string]quotedomain.Line {
	out := make(map[string]quotedomain.Line, len(lines))
	for _, line := range lines {
		out[line.Key] = line
	}
	return out
}

func termIDOf(term *termdomain.Term) *snowflake.ID {
	if term == nil {
		return nil
	}
	id := term.ID
	return &id
}

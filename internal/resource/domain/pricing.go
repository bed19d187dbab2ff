package domain

import "github.com/shopspring/decimal"

// RuleFor returns the rule with the highest threshold not above quantity.
// A resource holds one rule per threshold; rows predating that constraint tie
// to the oldest rule.
func (p PricedResource) RuleFor(quantity int64) *ScalingRule {
	var selected *ScalingRule
	for i := range p.Rules {
		rule := &p.Rules[i]
		if rule.Threshold > quantity {
			continue
		}
		switch {
		case selected == nil, rule.Threshold > selected.Threshold:
			selected = rule
		case rule.Threshold == selected.Threshold && rule.ID < selected.ID:
			selected = rule
		}
	}
	return selected
}

// UnitPrice resolves the effective per-unit price at quantity.
// A surcharge is a flat addition to every unit once its threshold is reached.
func (p PricedResource) UnitPrice(quantity int64) decimal.Decimal {
	base := p.Resource.UnitPrice
	rule := p.RuleFor(quantity)
	if rule == nil {
		return base
	}
	switch rule.Mode {
	case ScalingModeMultiplier:
		return base.Mul(rule.Factor)
	case ScalingModeSurcharge:
		return base.Add(rule.Factor)
	default:
		return base
	}
}

// SnapToStep rounds quantity down onto the step grid anchored at min_quantity,
// clamped to [min_quantity, max_quantity].
func (r Resource) SnapToStep(quantity int64) int64 {
	step := r.Step
	if step < 1 {
		step = 1
	}
	if r.MaxQuantity != nil && quantity > *r.MaxQuantity {
		quantity = *r.MaxQuantity
	}
	if quantity <= r.MinQuantity {
		return r.MinQuantity
	}
	return r.MinQuantity + ((quantity-r.MinQuantity)/step)*step
}

// Validate checks the catalog invariants of a resource definition.
func (r Resource) Validate() error {
	if r.UnitPrice.IsNegative() {
		return ErrInvalidUnitPrice
	}
	if r.Step < 1 {
		return ErrInvalidStep
	}
	if r.MinQuantity < 0 || r.DefaultQuantity < r.MinQuantity {
		return ErrInvalidQuantityBounds
	}
	if r.MaxQuantity != nil && (*r.MaxQuantity < r.DefaultQuantity || *r.MaxQuantity < r.MinQuantity) {
		return ErrInvalidQuantityBounds
	}
	return nil
}

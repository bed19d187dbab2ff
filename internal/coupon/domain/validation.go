package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type RejectReason string

const (
	ReasonInactive       RejectReason = "inactive"
	ReasonNotStarted     RejectReason = "not_started"
	ReasonExpired        RejectReason = "expired"
	ReasonUsageExhausted RejectReason = "usage_exhausted"
	ReasonPerUserLimit   RejectReason = "per_user_limit"
	ReasonTermMismatch   RejectReason = "term_mismatch"
)

// RejectedError reports why a coupon cannot be applied. It matches ErrRejected.
type RejectedError struct {
	Code   string
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return "coupon_rejected: " + string(e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

func reject(c *Coupon, reason RejectReason) *RejectedError {
	return &RejectedError{Code: c.Code, Reason: reason}
}

// Validate checks eligibility in a fixed order; the first failing reason wins.
// userRedemptions is the number of earlier redemptions by the requesting user.
func (c *Coupon) Validate(now time.Time, termID *snowflake.ID, userRedemptions int64) error {
	if !c.IsActive {
		return reject(c, ReasonInactive)
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return reject(c, ReasonNotStarted)
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return reject(c, ReasonExpired)
	}
	if c.MaxUsages != nil && c.UsageCount >= *c.MaxUsages {
		return reject(c, ReasonUsageExhausted)
	}
	if c.PerUserLimit != nil && userRedemptions >= *c.PerUserLimit {
		return reject(c, ReasonPerUserLimit)
	}
	if c.TermID != nil && (termID == nil || *termID != *c.TermID) {
		return reject(c, ReasonTermMismatch)
	}
	return nil
}

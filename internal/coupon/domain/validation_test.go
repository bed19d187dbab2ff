package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reasonOf(t *testing.T, err error) RejectReason {
	t.Helper()
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "expected RejectedError, got %v", err)
	assert.ErrorIs(t, err, ErrRejected)
	return rejected.Reason
}

func TestValidateReasonOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	termA := snowflake.ID(10)
	termB := snowflake.ID(11)

	// Every check fails; inactive must win.
	c := Coupon{
		Code:         "SAVE10",
		IsActive:     false,
		StartsAt:     &future,
		ExpiresAt:    &past,
		MaxUsages:    int64Ptr(1),
		UsageCount:   1,
		PerUserLimit: int64Ptr(1),
		TermID:       &termA,
	}
	assert.Equal(t, ReasonInactive, reasonOf(t, c.Validate(now, &termB, 1)))

	c.IsActive = true
	assert.Equal(t, ReasonNotStarted, reasonOf(t, c.Validate(now, &termB, 1)))

	c.StartsAt = &past
	assert.Equal(t, ReasonExpired, reasonOf(t, c.Validate(now, &termB, 1)))

	c.ExpiresAt = &future
	assert.Equal(t, ReasonUsageExhausted, reasonOf(t, c.Validate(now, &termB, 1)))

	c.UsageCount = 0
	assert.Equal(t, ReasonPerUserLimit, reasonOf(t, c.Validate(now, &termB, 1)))

	assert.Equal(t, ReasonTermMismatch, reasonOf(t, c.Validate(now, &termB, 0)))
	assert.Equal(t, ReasonTermMismatch, reasonOf(t, c.Validate(now, nil, 0)))

	assert.NoError(t, c.Validate(now, &termA, 0))
}

func TestValidateWindowIsHalfOpen(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	c := Coupon{IsActive: true, StartsAt: &start, ExpiresAt: &end}

	assert.NoError(t, c.Validate(start, nil, 0))
	assert.NoError(t, c.Validate(end.Add(-time.Nanosecond), nil, 0))
	assert.Equal(t, ReasonExpired, reasonOf(t, c.Validate(end, nil, 0)))
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Term struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	Slug         string          `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Name         string          `json:"name" gorm:"type:text;not null"`
	DurationDays int32           `json:"duration_days" gorm:"not null"`
	Multiplier   decimal.Decimal `json:"multiplier" gorm:"type:numeric;not null"`
	Active       bool            `json:"active" gorm:"not null;default:true"`
	IsDefault    bool            `json:"is_default" gorm:"not null;default:false"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Term) TableName() string { return "terms" }

// MultiplierFor returns the price multiplier of term, or one when no term applies.
func MultiplierFor(term *Term) decimal.Decimal {
	if term == nil {
		return decimal.NewFromInt(1)
	}
	return term.Multiplier
}

// DurationDaysFor returns the duration of term, or fallback when no term applies.
func DurationDaysFor(term *Term, fallback int) int {
	if term == nil || term.DurationDays <= 0 {
		return fallback
	}
	return int(term.DurationDays)
}

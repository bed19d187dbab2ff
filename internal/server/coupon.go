package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
)

type createCouponRequest struct {
	Code             string           `json:"code" binding:"required,coupon_code"`
	Type             string           `json:"type" binding:"required,oneof=amount percentage resource duration"`
	Value            *decimal.Decimal `json:"value"`
	Percentage       *decimal.Decimal `json:"percentage"`
	ResourceKey      *string          `json:"resource_key"`
	ResourceQuantity *int64           `json:"resource_quantity"`
	DurationDays     *int32           `json:"duration_days"`
	MaxUsages        *int64           `json:"max_usages"`
	PerUserLimit     *int64           `json:"per_user_limit"`
	TermID           string           `json:"term_id"`
	IsActive         *bool            `json:"is_active"`
	StartsAt         *time.Time       `json:"starts_at"`
	ExpiresAt        *time.Time       `json:"expires_at"`
}

func (s *Server) ListCoupons(c *gin.Context) {
	resp, err := s.couponSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.couponSvc.Create(c.Request.Context(), coupondomain.CreateRequest{
		Code:             strings.TrimSpace(req.Code),
		Type:             coupondomain.CouponType(req.Type),
		Value:            req.Value,
		Percentage:       req.Percentage,
		ResourceKey:      req.ResourceKey,
		ResourceQuantity: req.ResourceQuantity,
		DurationDays:     req.DurationDays,
		MaxUsages:        req.MaxUsages,
		PerUserLimit:     req.PerUserLimit,
		TermID:           strings.TrimSpace(req.TermID),
		IsActive:         req.IsActive,
		StartsAt:         req.StartsAt,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCoupon(c *gin.Context) {
	var patch coupondomain.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.couponSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
)

type createResourceRequest struct {
	Key             string          `json:"key" binding:"required,max=64"`
	Name            string          `json:"name" binding:"required,max=191"`
	Description     string          `json:"description"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Currency        string          `json:"currency" binding:"currency"`
	MinQuantity     int64           `json:"min_quantity" binding:"gte=0"`
	MaxQuantity     *int64          `json:"max_quantity"`
	DefaultQuantity int64           `json:"default_quantity" binding:"gte=0"`
	Step            int64           `json:"step" binding:"gte=0"`
	Visible         *bool           `json:"visible"`
	Metered         bool            `json:"metered"`
	SortOrder       int32           `json:"sort_order"`
}

type createScalingRuleRequest struct {
	Threshold int64           `json:"threshold" binding:"gte=0"`
	Mode      string          `json:"mode" binding:"required,oneof=multiplier surcharge"`
	Factor    decimal.Decimal `json:"factor"`
	Label     string          `json:"label" binding:"max=191"`
}

func (s *Server) ListResources(c *gin.Context) {
	var query struct {
		Currency string `form:"currency" binding:"currency"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.resourceSvc.List(c.Request.Context(), strings.TrimSpace(query.Currency))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.resourceSvc.Create(c.Request.Context(), resourcedomain.CreateRequest{
		Key:             strings.TrimSpace(req.Key),
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		UnitPrice:       req.UnitPrice,
		Currency:        strings.TrimSpace(req.Currency),
		MinQuantity:     req.MinQuantity,
		MaxQuantity:     req.MaxQuantity,
		DefaultQuantity: req.DefaultQuantity,
		Step:            req.Step,
		Visible:         req.Visible,
		Metered:         req.Metered,
		SortOrder:       req.SortOrder,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateResource(c *gin.Context) {
	var patch resourcedomain.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.resourceSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddScalingRule(c *gin.Context) {
	var req createScalingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.resourceSvc.AddScalingRule(c.Request.Context(), strings.TrimSpace(c.Param("id")), resourcedomain.CreateScalingRuleRequest{
		Threshold: req.Threshold,
		Mode:      resourcedomain.ScalingMode(req.Mode),
		Factor:    req.Factor,
		Label:     strings.TrimSpace(req.Label),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

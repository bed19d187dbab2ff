package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
)

type createTermRequest struct {
	Slug         string          `json:"slug" binding:"max=64"`
	Name         string          `json:"name" binding:"required,max=191"`
	DurationDays int32           `json:"duration_days" binding:"gt=0"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Active       *bool           `json:"active"`
	IsDefault    bool            `json:"is_default"`
}

type promoteDefaultTermRequest struct {
	ID string `json:"id"`
}

func (s *Server) ListTerms(c *gin.Context) {
	resp, err := s.termSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateTerm(c *gin.Context) {
	var req createTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.termSvc.Create(c.Request.Context(), termdomain.CreateRequest{
		Slug:         strings.TrimSpace(req.Slug),
		Name:         strings.TrimSpace(req.Name),
		DurationDays: req.DurationDays,
		Multiplier:   req.Multiplier,
		Active:       req.Active,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTerm(c *gin.Context) {
	var patch termdomain.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.termSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// PromoteDefaultTerm moves the default flag; an empty id clears it.
func (s *Server) PromoteDefaultTerm(c *gin.Context) {
	var req promoteDefaultTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.termSvc.PromoteDefault(c.Request.Context(), strings.TrimSpace(req.ID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

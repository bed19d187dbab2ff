package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
)

type selectionRequest struct {
	Resource string `json:"resource" binding:"required,max=64"`
	Quantity int64  `json:"quantity"`
}

type quoteRequest struct {
	Resources []selectionRequest   `json:"resources" binding:"dive"`
	Term      string               `json:"term" binding:"max=64"`
	Coupons   []string             `json:"coupons" binding:"max=10,dive,coupon_code"`
	Options   *quotedomain.Options `json:"options"`
	Currency  string               `json:"currency" binding:"currency"`
}

func (r quoteRequest) toDomain() quotedomain.Request {
	selections := make([]quotedomain.Selection, 0, len(r.Resources))
	for _, sel := range r.Resources {
		selections = append(selections, quotedomain.Selection{
			Resource: strings.TrimSpace(sel.Resource),
			Quantity: sel.Quantity,
		})
	}
	coupons := make([]string, 0, len(r.Coupons))
	for _, code := range r.Coupons {
		coupons = append(coupons, strings.TrimSpace(code))
	}
	return quotedomain.Request{
		Resources: selections,
		Term:      strings.TrimSpace(r.Term),
		Coupons:   coupons,
		Options:   r.Options,
		Currency:  strings.TrimSpace(r.Currency),
	}
}

func (s *Server) Quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	domainReq := req.toDomain()
	if userID, ok := currentUser(c); ok {
		domainReq.UserID = &userID
	}

	result, err := s.quoteSvc.CalculateQuote(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result.Response()})
}

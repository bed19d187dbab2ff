package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
)

type checkoutRequest struct {
	quoteRequest

	NodeID     string            `json:"node_id" binding:"required"`
	Type       string            `json:"type" binding:"omitempty,oneof=NEW RENEWAL"`
	ServerID   string            `json:"server_id" binding:"max=64"`
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name" binding:"max=191"`
	Storefront string            `json:"storefront" binding:"max=64"`
	Variables  map[string]string `json:"variables"`
}

func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	quoteReq := req.toDomain()
	quoteReq.UserID = &userID

	resp, err := s.orderSvc.Checkout(c.Request.Context(), orderdomain.CheckoutRequest{
		Request:    quoteReq,
		UserID:     userID,
		NodeID:     strings.TrimSpace(req.NodeID),
		Type:       orderdomain.Type(strings.ToUpper(strings.TrimSpace(req.Type))),
		ServerID:   strings.TrimSpace(req.ServerID),
		ProductID:  strings.TrimSpace(req.ProductID),
		Name:       strings.TrimSpace(req.Name),
		Storefront: req.Storefront,
		Variables:  req.Variables,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Settlement != nil {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

// Settle is called by the panel after the client confirmed the payment.
func (s *Server) Settle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.settlementSvc.Settle(c.Request.Context(), c.Param("reference"), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

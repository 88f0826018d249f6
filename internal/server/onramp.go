package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payhook/internal/onramp"
)

type onrampSignRequest struct {
	CartID string `json:"cart_id"`
}

func (s *Server) HandleOnrampSign(c *gin.Context) {
	var req onrampSignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.CartID) == "" {
		AbortWithError(c, newValidationError("cart_id", "required", "cart_id is required"))
		return
	}

	clientIP := onramp.ResolveClientIP(c.GetHeader("X-Forwarded-For"), c.ClientIP())

	session, err := s.signer.Sign(c.Request.Context(), req.CartID, clientIP)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

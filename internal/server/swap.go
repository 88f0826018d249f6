package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payhook/internal/swap"
)

func (s *Server) HandleCreateExchange(c *gin.Context) {
	var req swap.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Amount) == "" {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}

	result, err := s.swapClient.CreateExchange(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.StatusCode, contentType, result.Body)
}

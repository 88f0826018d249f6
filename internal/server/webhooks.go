package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
)

// Webhook bodies are read raw before any decoding: both providers sign the
// exact bytes they sent.

func (s *Server) HandleCardWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), webhookdomain.ProviderCard, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	response := gin.H{"received": true}
	if result.Outcome == webhookdomain.OutcomeDuplicate {
		response["status"] = "duplicate"
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) HandleOnrampWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), webhookdomain.ProviderOnramp, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	response := gin.H{"received": true}
	if result.Outcome == webhookdomain.OutcomeDuplicate {
		response["status"] = "duplicate"
	}
	c.JSON(http.StatusOK, response)
}

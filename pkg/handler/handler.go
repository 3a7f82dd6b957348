package handler

import (
	"paybridge_back/pkg/middleware"
	"paybridge_back/pkg/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// WebhookCredentials verify inbound notifications from one upstream source.
type WebhookCredentials struct {
	AccessKey string
	SecretKey string
}

type Config struct {
	APIKey         string
	WebhookBaseURL string
	WebhookCreds   map[string]WebhookCredentials
	AllowOrigins   []string
}

type Handler struct {
	service *service.Service
	cfg     Config
}

func NewHandler(service *service.Service, cfg Config) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
	}
}

func (h *Handler) InitRoute() *gin.Engine {
	router := gin.New()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     h.cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "X-Api-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	api := router.Group("/api", middleware.APIKeyAuth(h.cfg.APIKey))
	{
		transfer := api.Group("/transfer")
		{
			transfer.POST("/", h.CreateTransfer)
			transfer.GET("/:id", h.GetTransfer)
			transfer.GET("/:id/fee", h.GetTransferFee)
		}
	}

	// Webhooks authenticate with their own HMAC headers, not the API key.
	webhook := router.Group("/webhook")
	{
		webhook.POST("/:source", h.HandleWebhook)
	}
	return router
}

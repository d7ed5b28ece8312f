package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bilimevi/contractgate/backend/config"
	"github.com/bilimevi/contractgate/backend/middleware"
	"github.com/bilimevi/contractgate/backend/web"
	"github.com/gin-gonic/gin"
)

// Services are the outbound dependencies of the HTTP layer.
type Services struct {
	Contracts ContractResolver
	Documents DocumentFetcher
	Captcha   CaptchaVerifier
	Approvals ApprovalForwarder
}

// NewRouter builds the gin engine with middleware, API routes and the
// embedded contract page.
func NewRouter(cfg *config.Config, svc Services) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	router := gin.New()
	// ClientIP keys the rate limiter; forwarded headers count only from listed proxies.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CacheControl())

	router.StaticFS("/static", http.FS(web.Static()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	contractHandler := NewContractHandler(svc.Contracts, svc.Documents)
	approveHandler := NewApproveHandler(svc.Captcha, svc.Approvals)
	pageHandler := NewPageHandler(cfg.Captcha.SiteKey)

	api := router.Group("/api")
	if cfg.RateLimit.RPS > 0 {
		api.Use(middleware.RateLimit(cfg.RateLimit.RPS, max(cfg.RateLimit.Burst, 1)))
	}
	{
		api.GET("/contract", contractHandler.Get)
		api.POST("/approve", approveHandler.Approve)
	}

	router.GET("/", pageHandler.Index)
	router.GET("/contract/:token", pageHandler.Contract)
	router.GET("/sozlesme/:token", pageHandler.Contract)

	return router, nil
}

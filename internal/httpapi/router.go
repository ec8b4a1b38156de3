package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"leadbroker/pkg/config"
	"leadbroker/pkg/health"
	"leadbroker/pkg/middleware"
	"leadbroker/services/callback"
	"leadbroker/services/forward"
)

type RouterParams struct {
	fx.In
	Cfg      *config.Config
	Callback *callback.Handler
	Forward  *forward.Service
	Health   health.HealthService
}

// ProvideRouter assembles the broker's HTTP surface.
func ProvideRouter(p RouterParams) http.Handler {
	if p.Cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/advertiser_callback", p.Callback.Callback)

	v1 := r.Group("/v1")
	v1.POST("/leads/:lead_id/retry", func(c *gin.Context) {
		if err := p.Forward.Retry(c.Request.Context(), c.Param("lead_id")); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}

package server

import (
	"net/http"
	"strings"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	mw "faultline-go/internal/middleware"
	"faultline-go/internal/uistate"
	"github.com/gin-gonic/gin"
)

// applyStandardEngineSettings applies the gin mode and the middleware chain.
// The request id runs first so panics and logs carry it.
func applyStandardEngineSettings(engine *gin.Engine, cfg *config.Config, deps Dependencies) {
	if !cfg.Logging.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	_ = engine.SetTrustedProxies([]string{})

	recoverer := gin.Recovery()
	if deps.Handler != nil {
		recoverer = deps.Handler.Middleware()
	}
	engine.Use(mw.RequestID(), recoverer, mw.Metrics(), mw.RequestLogger())

	// websocket and profiling routes stay same-origin
	basePath := strings.TrimRight(cfg.Server.BasePath, "/")
	engine.Use(mw.CORS(cfg.Security.CORSOrigins, basePath+"/api/v1/ws", basePath+"/api/v1/debug"))
	if cfg.RateLimit.Enabled {
		engine.Use(mw.RateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
}

// registerMetaRoutes registers the unauthenticated health and metrics endpoints.
func registerMetaRoutes(r gin.IRoutes, deps Dependencies) {
	r.GET("/metrics", mw.MetricsHandler)
	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{
			"service": constants.ServiceName,
			"version": constants.Version,
			"status":  uistate.StatusHealthy,
		}
		code := http.StatusOK
		if deps.UI != nil {
			st := deps.UI.Snapshot()
			body["online"] = st.IsOnline
			if h := st.SystemHealth; h != nil {
				body["status"] = h.Status
				body["lastCheck"] = h.LastCheck
				body["services"] = h.Services
				if h.Status == uistate.StatusDown {
					code = http.StatusServiceUnavailable
				}
			}
		}
		setNoCacheHeaders(c)
		c.JSON(code, body)
	})
}

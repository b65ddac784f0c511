// Package server assembles the gin engine of the error collector.
package server

import (
	"strings"
	"time"

	"faultline-go/internal/config"
	"faultline-go/internal/errorstore"
	"faultline-go/internal/events"
	"faultline-go/internal/logging"
	mw "faultline-go/internal/middleware"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/recovery"
	rt "faultline-go/internal/runtime"
	"faultline-go/internal/uistate"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Dependencies encapsulates runtime services required to build the HTTP engine.
type Dependencies struct {
	Archive     *errorstore.Store
	Handler     *recovery.Handler
	UI          *uistate.Store
	Events      events.Publisher
	ErrorStream *logging.Streamer
	LogStream   *logging.Streamer
	Tasks       *rt.TaskManager
}

// collector carries the request handlers.
type collector struct {
	cfg     *config.Config
	deps    Dependencies
	tracker *monitoring.IngestTracker
}

// BuildEngine constructs the collector engine.
//
//	{base}/healthz, {base}/metrics
//	{base}/api/v1/errors, /errors/batch                ingest (public)
//	{base}/api/v1/errors/..., /stream/..., /ws/...     management key protected
func BuildEngine(cfg *config.Config, deps Dependencies) *gin.Engine {
	engine := gin.New()
	applyStandardEngineSettings(engine, cfg, deps)

	basePath := strings.TrimRight(cfg.Server.BasePath, "/")
	root := engine.Group(basePath)
	registerMetaRoutes(root, deps)

	api := root.Group("/api/v1")
	col := &collector{cfg: cfg, deps: deps, tracker: monitoring.NewIngestTracker(time.Minute, 60)}
	registerIngestRoutes(api, col)

	var validate func(string) bool
	if cfg.ManagementConfigured() {
		validate = config.ManagementKeyValidator(cfg)
	} else {
		log.Warn("no management key configured; management API is disabled")
	}
	mg := api.Group("", mw.ManagementAuth(validate))
	registerManagementRoutes(mg, col)
	registerStreamRoutes(mg, cfg, deps)
	if cfg.Logging.Debug {
		registerPprof(mg)
	}
	return engine
}

package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/coachwatch/internal/api/handlers"
	"github.com/your-org/coachwatch/internal/api/ws"
	"github.com/your-org/coachwatch/internal/auth"
	"github.com/your-org/coachwatch/internal/surveillance"
)

type RouterConfig struct {
	APIKey   string
	AdminKey string

	Roster   handlers.Roster
	Zones    *surveillance.Zones
	Monitors *surveillance.Monitors
	Logs     handlers.SecurityLogReader
	Hub      *ws.Hub
	Checks   []handlers.Check

	PreviewInterval time.Duration
	MonitorInterval time.Duration
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))
	admin := auth.AdminKeyMiddleware(cfg.AdminKey)

	v1.GET("/ws", cfg.Hub.HandleWS)

	// Identities
	idH := handlers.NewIdentityHandler(cfg.Roster)
	v1.GET("/identities", idH.List)
	v1.GET("/identities/export", idH.Export)
	v1.GET("/identities/:id", idH.Get)
	v1.POST("/identities", admin, idH.Enroll)
	v1.POST("/identities/import", admin, idH.Import)
	v1.DELETE("/identities/:id", admin, idH.Delete)

	// Zones
	zoneH := handlers.NewZoneHandler(cfg.Zones, cfg.Hub)
	v1.GET("/zones", zoneH.List)
	v1.POST("/zones/reset", admin, zoneH.ResetAll)
	v1.GET("/zones/:id", zoneH.Get)
	v1.GET("/zones/:id/intrusions", zoneH.Intrusions)
	v1.POST("/zones/:id/reset", admin, zoneH.Reset)

	// Cameras
	camH := handlers.NewCameraHandler(cfg.Monitors, cfg.PreviewInterval, cfg.MonitorInterval)
	v1.GET("/cameras", camH.List)
	v1.POST("/cameras/:id/start", camH.Start)
	v1.POST("/cameras/:id/stop", camH.Stop)

	logH := handlers.NewSecurityLogHandler(cfg.Logs)
	v1.GET("/security-logs", logH.List)

	return r
}

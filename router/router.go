package router

import (
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/controllers"
	"github.com/yeremiapane/restaurant-tables/kds"
	"github.com/yeremiapane/restaurant-tables/middlewares"
	"github.com/yeremiapane/restaurant-tables/services"
)

type Options struct {
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

func SetupRouter(db *gorm.DB, registry *services.TableRegistry, ledger *services.UsageLedger, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware global
	r.Use(gin.Recovery())
	r.Use(requestid.New())
	r.Use(middlewares.Metrics())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(opts.CORSAllowedOrigins))

	// Inisialisasi controller
	stats := services.NewStatsAggregator(registry)
	tableCtrl := controllers.NewTableController(registry, ledger, stats)
	cleanLogCtrl := controllers.NewCleaningLogController(db, registry)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "dashboards": kds.ClientCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Endpoint WebSocket untuk dashboard (tanpa auth, hanya baca)
	r.GET("/ws/tables", controllers.KDSHandler)

	// ----------------------------------------------------------------
	//                      TABLE API
	// ----------------------------------------------------------------
	api := r.Group("/api/v1")
	api.Use(middlewares.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).RateLimit())
	{
		tables := api.Group("/tables")
		tables.GET("", tableCtrl.GetAllTables)
		tables.POST("", tableCtrl.CreateTable)
		tables.GET("/stats", tableCtrl.GetTableStats)

		tables.GET("/:table_id", tableCtrl.GetTableByID)
		tables.PATCH("/:table_id", tableCtrl.UpdateTable)
		tables.DELETE("/:table_id", tableCtrl.DeleteTable)

		tables.PATCH("/:table_id/status", tableCtrl.UpdateTableStatus)
		tables.GET("/:table_id/transitions", tableCtrl.GetTableTransitions)

		tables.GET("/:table_id/usage", tableCtrl.GetUsageHistory)
		tables.GET("/:table_id/usage/current", tableCtrl.GetCurrentUsage)
		tables.GET("/:table_id/usage/summary", tableCtrl.GetUsageSummary)
		tables.POST("/:table_id/usage/accumulate", tableCtrl.AccumulateUsage)

		tables.GET("/:table_id/cleaning-logs", cleanLogCtrl.GetTableCleaningLogs)
	}

	return r
}

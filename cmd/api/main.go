package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Asmith-M/UPI-Recon/docs"
	"github.com/Asmith-M/UPI-Recon/internal/audit"
	"github.com/Asmith-M/UPI-Recon/internal/config"
	"github.com/Asmith-M/UPI-Recon/internal/forcematch"
	"github.com/Asmith-M/UPI-Recon/internal/handler"
	"github.com/Asmith-M/UPI-Recon/internal/middleware"
	"github.com/Asmith-M/UPI-Recon/internal/parser"
	"github.com/Asmith-M/UPI-Recon/internal/rollback"
	"github.com/Asmith-M/UPI-Recon/internal/service"
	"github.com/Asmith-M/UPI-Recon/internal/store"
	"github.com/Asmith-M/UPI-Recon/pkg/logger"
)

// @title UPI Reconciliation API
// @version 1.0
// @description API for three-way reconciliation of UPI transactions across CBS, Switch and NPCI

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.LogLevel)
	logger.GetLogger().Info("Starting UPI Reconciliation Service")

	// Initialize storage
	runStore, err := store.NewRunStore(cfg.App.UploadDir, cfg.App.OutputDir)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to initialize run store")
	}

	// Initialize audit trail, mirroring to Postgres when configured
	var sink audit.Sink
	if cfg.Audit.PostgresDSN != "" {
		pgSink, err := audit.NewPostgresSink(cfg.Audit.PostgresDSN)
		if err != nil {
			logger.GetLogger().WithError(err).Fatal("Failed to connect to audit database")
		}
		defer pgSink.Close()
		sink = pgSink
		logger.GetLogger().Info("Audit database connection established")
	}
	trail, err := audit.NewTrail(fmt.Sprintf("%s/audit_trail.jsonl", cfg.App.OutputDir), sink)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to initialize audit trail")
	}

	// Initialize services
	fileParser := parser.NewParser(cfg.App.MaxUploadBytes)
	uploadService := service.NewUploadService(runStore, fileParser, trail)
	reconService := service.NewReconService(cfg, runStore, fileParser, trail)
	reportService := service.NewReportService(cfg, runStore, trail)
	accountingService := service.NewAccountingService(cfg, runStore, trail)
	summaryService := service.NewSummaryService(runStore)
	forceMatchService := forcematch.NewService(runStore, trail)
	rollbackManager := rollback.NewManager(runStore, trail)

	// Initialize handlers
	uploadHandler := handler.NewUploadHandler(uploadService)
	reconHandler := handler.NewReconHandler(reconService, summaryService)
	reportHandler := handler.NewReportHandler(reportService)
	voucherHandler := handler.NewVoucherHandler(accountingService)
	forceMatchHandler := handler.NewForceMatchHandler(forceMatchService)
	rollbackHandler := handler.NewRollbackHandler(rollbackManager)
	auditHandler := handler.NewAuditHandler(trail)

	// Setup router
	router := setupRouter(cfg, uploadHandler, reconHandler, reportHandler,
		voucherHandler, forceMatchHandler, rollbackHandler, auditHandler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.GetLogger().WithField("address", addr).Info("Server starting")

	if err := router.Run(addr); err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to start server")
	}
}

func setupRouter(
	cfg *config.Config,
	uploadHandler *handler.UploadHandler,
	reconHandler *handler.ReconHandler,
	reportHandler *handler.ReportHandler,
	voucherHandler *handler.VoucherHandler,
	forceMatchHandler *handler.ForceMatchHandler,
	rollbackHandler *handler.RollbackHandler,
	auditHandler *handler.AuditHandler,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(gin.Recovery())

	// One shared per-IP bucket guards the heavyweight endpoints; read-only
	// routes stay unthrottled.
	rateLimit := middleware.RateLimit(cfg.App.RateLimitMax, cfg.App.RateLimitWindow)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/upload", uploadHandler.Upload)
		v1.POST("/reconcile", rateLimit, reconHandler.Reconcile)
		v1.GET("/transactions/:rrn", reconHandler.LookupRRN)

		runs := v1.Group("/runs")
		{
			runs.GET("/latest/summary", reconHandler.GetLatestSummary)
			runs.GET("/historical", reconHandler.GetHistorical)
			runs.GET("/:run_id/summary", reconHandler.GetSummary)
			runs.GET("/:run_id/reports/:kind", reportHandler.GetReport)
			runs.GET("/:run_id/ttum", reportHandler.DownloadTTUM)
			runs.POST("/:run_id/vouchers/post", voucherHandler.PostVouchers)
			runs.GET("/:run_id/vouchers/summary", voucherHandler.GetVoucherSummary)

			runs.POST("/:run_id/force-match", rateLimit, forceMatchHandler.Propose)
			runs.GET("/:run_id/force-match", forceMatchHandler.List)
			runs.POST("/:run_id/force-match/:proposal_id/approve", rateLimit, forceMatchHandler.Approve)
			runs.POST("/:run_id/force-match/:proposal_id/reject", rateLimit, forceMatchHandler.Reject)

			runs.POST("/:run_id/rollback/ingestion", rollbackHandler.Ingestion)
			runs.POST("/:run_id/rollback/mid-recon", rollbackHandler.MidRecon)
			runs.POST("/:run_id/rollback/cycle", rollbackHandler.CycleWise)
			runs.POST("/:run_id/rollback/accounting", rollbackHandler.Accounting)
			runs.POST("/:run_id/rollback/whole", rollbackHandler.WholeProcess)
		}

		v1.GET("/rollback/history", rollbackHandler.History)

		auditGroup := v1.Group("/audit")
		{
			auditGroup.GET("/trail", auditHandler.GetTrail)
			auditGroup.GET("/summary", auditHandler.GetSummary)
			auditGroup.GET("/compliance/:run_id", auditHandler.GetCompliance)
		}
	}

	return router
}

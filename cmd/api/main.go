package main

import (
	_ "faturacao/api/swagger" // swagger docs
	"faturacao/internal/config"
	"faturacao/internal/database"
	"faturacao/internal/handler"
	"faturacao/internal/logger"
	"faturacao/internal/middleware"
	"faturacao/internal/repository"
	"faturacao/internal/service"
	"faturacao/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Faturacao API
// @version         1.0
// @description     Certified invoicing backend with hash-chained document issuance.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connected to PostgreSQL")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	seriesRepo := repository.NewSeriesRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	coordinator := service.NewIssuanceCoordinator(seriesRepo, docRepo, auditRepo, txManager, wsHub, service.EmitterInfo{
		TaxID:   cfg.EmitterTaxID,
		Country: cfg.EmitterCountry,
	})

	userService := service.NewUserService(userRepo)
	clientService := service.NewClientService(clientRepo, auditRepo, txManager)
	seriesService := service.NewSeriesService(seriesRepo, auditRepo, txManager)
	documentService := service.NewDocumentService(coordinator, docRepo, seriesRepo, clientRepo, auditRepo, txManager, wsHub)
	orderService := service.NewOrderService(orderRepo, clientRepo, auditRepo, coordinator, txManager)
	auditService := service.NewAuditService(auditRepo)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	clientHandler := handler.NewClientHandler(clientService)
	seriesHandler := handler.NewSeriesHandler(seriesService, documentService)
	documentHandler := handler.NewDocumentHandler(documentService)
	orderHandler := handler.NewOrderHandler(orderService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	clientHandler.RegisterRoutes(router.Group(""))
	seriesHandler.RegisterRoutes(router.Group(""))
	documentHandler.RegisterRoutes(router.Group(""))
	orderHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

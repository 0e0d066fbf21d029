package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"returns-service/internal/clients"
	"returns-service/internal/config"
	"returns-service/internal/events"
	"returns-service/internal/handlers"
	"returns-service/internal/middleware"
	"returns-service/internal/models"
	"returns-service/internal/repository"
	"returns-service/internal/services"
)

// @title Returns Service API
// @version 1.0
// @description Return and exchange workflow service for the storefront

// @contact.name API Support

// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate database schema
	if err := migrateDatabase(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis client (optional - graceful degradation if Redis unavailable)
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Failed to parse Redis URL: %v", err)
			log.Println("Continuing without Redis caching...")
		} else {
			redisClient = redis.NewClient(opt)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Printf("Warning: Failed to connect to Redis: %v", err)
				log.Println("Continuing without Redis caching...")
				redisClient = nil
			} else {
				log.Println("✓ Connected to Redis for caching")
			}
		}
	} else {
		log.Println("REDIS_URL not configured, caching disabled")
	}

	// Initialize repositories
	returnRepo := repository.NewReturnRepository(db, redisClient)
	orderRepo := repository.NewOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize clients
	paymentClient := clients.NewPaymentClient()
	log.Println("Payment client initialized for refund processing")

	notificationClient := clients.NewNotificationClient()
	log.Println("Notification client initialized for return emails")

	shippingClient := clients.NewShippingClient()
	log.Println("Shipping client initialized for return labels")

	// Initialize NATS events publisher for return lifecycle events
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	var eventsPublisher *events.Publisher
	eventsPublisher, err = events.NewPublisher(logger)
	if err != nil {
		log.Printf("WARNING: Failed to initialize NATS events publisher: %v (continuing without events)", err)
		eventsPublisher = nil
	} else {
		log.Println("NATS events publisher initialized for return lifecycle events")
	}

	// Initialize services.
	// Exchange order creation is nil until the order pipeline exposes an
	// exchange endpoint; exchange-type returns complete without a linked order.
	var publisher services.EventPublisher
	if eventsPublisher != nil {
		publisher = eventsPublisher
	}
	returnService := services.NewReturnService(
		returnRepo,
		orderRepo,
		auditRepo,
		paymentClient,
		notificationClient,
		shippingClient,
		publisher,
		nil,
	)

	// Initialize handlers
	returnHandler := handlers.NewReturnHandlers(returnService)
	healthHandler := handlers.NewHealthHandler(db)

	// Setup router
	router := setupRouter(cfg, returnHandler, healthHandler)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down Returns Service...")

		if eventsPublisher != nil {
			eventsPublisher.Close()
			log.Println("✓ Events publisher closed")
		}

		log.Println("Returns service stopped")
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting Returns Service on %s", cfg.GetServerAddress())
	if err := router.Run(cfg.GetServerAddress()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initDatabase initializes the database connection
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}

// migrateDatabase runs database migrations
func migrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.OrderCustomer{},
		&models.OrderShipping{},
		&models.ReturnRequest{},
		&models.ReturnItem{},
		&models.ReturnPolicy{},
		&models.ReturnAuditLog{},
	)
}

// setupRouter configures the Gin router with middleware and routes
func setupRouter(cfg *config.Config, returnHandler *handlers.ReturnHandlers, healthHandler *handlers.HealthHandler) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.HealthCheck)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Admin API - identity forwarded by the gateway as X-User-ID
	api := router.Group("/api/v1")
	api.Use(middleware.UserID())
	{
		returns := api.Group("/returns")
		{
			returns.GET("", returnHandler.ListReturns)
			returns.GET("/policy", returnHandler.GetReturnPolicy)
			returns.PUT("/policy", returnHandler.UpdateReturnPolicy)
			returns.GET("/analytics", returnHandler.GetAnalytics)
			returns.GET("/:id", returnHandler.GetReturn)
			returns.GET("/:id/audit", returnHandler.GetReturnAuditTrail)
			returns.PATCH("/:id/status", returnHandler.UpdateStatus)
			returns.POST("/:id/complete", returnHandler.CompleteReturn)
		}
	}

	// Customer-authenticated storefront endpoints (require valid customer JWT)
	storefront := router.Group("/api/v1/storefront")
	storefront.Use(middleware.CustomerAuthMiddleware())
	{
		storefront.POST("/returns", returnHandler.CreateReturn)
		storefront.GET("/returns", returnHandler.GetMyReturns)
		storefront.GET("/returns/:id", returnHandler.GetMyReturn)
		storefront.POST("/returns/:id/label", returnHandler.GenerateLabel)
	}
	log.Println("✓ Storefront endpoints initialized")

	return router
}

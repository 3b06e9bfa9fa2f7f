package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/config"
	"github.com/smarttransit/taxi-booking-backend/internal/database"
	"github.com/smarttransit/taxi-booking-backend/internal/handlers"
	"github.com/smarttransit/taxi-booking-backend/internal/metrics"
	"github.com/smarttransit/taxi-booking-backend/internal/middleware"
	"github.com/smarttransit/taxi-booking-backend/internal/services"
	"github.com/smarttransit/taxi-booking-backend/pkg/events"
	"github.com/smarttransit/taxi-booking-backend/pkg/jwt"
	"github.com/smarttransit/taxi-booking-backend/pkg/mailer"
	"github.com/smarttransit/taxi-booking-backend/pkg/refclient"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting City Taxi Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register request validators: %v", err)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Reference cache, optional
	var refCache refclient.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unreachable, reference cache disabled")
		} else {
			refCache = refclient.NewRedisCache(rdb)
			logger.WithField("addr", cfg.Redis.Addr).Info("Reference cache enabled")
		}
	}

	refs := refclient.NewClient(refclient.Config{
		VehicleClassURL: cfg.References.VehicleClassURL,
		DriverURL:       cfg.References.DriverURL,
		VehicleURL:      cfg.References.VehicleURL,
		FareSchemeURL:   cfg.References.FareSchemeURL,
		CorporateURL:    cfg.References.CorporateURL,
		PromoCodeURL:    cfg.References.PromoCodeURL,
		UserURL:         cfg.References.UserURL,
		ServiceToken:    cfg.References.ServiceToken,
		Timeout:         cfg.References.Timeout,
		CacheTTL:        cfg.References.CacheTTL,
	}, refCache)

	// Mailer
	var mail mailer.Mailer
	if cfg.SMTP.Mode == "production" {
		smtpMailer, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromName:  cfg.SMTP.FromName,
			FromEmail: cfg.SMTP.FromEmail,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize mailer: %v", err)
		}
		mail = smtpMailer
		logger.WithField("host", cfg.SMTP.Host).Info("SMTP mailer initialized")
	} else {
		mail = mailer.NewLogMailer(logger)
		logger.Info("Development mode: emails are logged, not sent")
	}

	// Event publisher
	var publisher events.Publisher
	if cfg.RabbitMQ.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		publisher = amqpPublisher
		logger.WithField("exchange", cfg.RabbitMQ.Exchange).Info("RabbitMQ publisher initialized")
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Info("RABBITMQ_URL not set: booking events are logged only")
	}
	defer publisher.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize repositories
	bookingRepo := database.NewBookingRepository(db.DB)
	cancellationRepo := database.NewBookingCancellationRepository(db.DB)
	historyRepo := database.NewBookingStatusHistoryRepository(db.DB)
	outboxRepo := database.NewBookingEventOutboxRepository(db.DB)
	templateRepo := database.NewEmailTemplateRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	enricher := services.NewReferenceEnricher(refs, m, logger)

	var notifier services.Notifier = services.NopNotifier{}
	var asyncNotifier *services.AsyncNotifier
	if cfg.Notification.Enabled {
		asyncNotifier = services.NewAsyncNotifier(
			services.NewNotificationService(templateRepo, refs, mail, m, logger),
			cfg.Notification.Workers,
			cfg.Notification.QueueSize,
			cfg.Notification.SendTimeout,
			m,
			logger,
		)
		notifier = asyncNotifier
		logger.WithField("workers", cfg.Notification.Workers).Info("Booking notifications enabled")
	}

	lifecycleService := services.NewBookingLifecycleService(
		bookingRepo,
		cancellationRepo,
		outboxRepo,
		services.NewAuditService(historyRepo),
		services.NewBookingIdentifier(cfg.Booking.TukVehicleClassID, cfg.Booking.DefaultClassTag),
		refs,
		enricher,
		notifier,
		m,
		services.BookingLifecycleConfig{IDRetryAttempts: cfg.Booking.IDRetryAttempts},
		logger,
	)

	// Initialize and start cron service
	relayService := services.NewOutboxRelayService(outboxRepo, publisher, cfg.Outbox.BatchSize, m, logger)
	cronService := services.NewCronService(relayService, cfg.Outbox.Schedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - Booking event relay enabled")

	bookingHandler := handlers.NewBookingHandler(lifecycleService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check and metrics endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService, logger))
		bookingHandler.RegisterRoutes(bookings)

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger))
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/jobs", jobStatusHandler(cronService))
			admin.POST("/jobs/outbox-relay/run", runRelayHandler(cronService))
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop cron service
	cronService.Stop()

	// Deliver queued notifications
	if asyncNotifier != nil {
		logger.Info("Draining notification queue...")
		asyncNotifier.Close()
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		// Add user context if available
		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID.String()
			fields["roles"] = userCtx.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		// Log based on status code
		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}

// jobStatusHandler reports the scheduled jobs
func jobStatusHandler(cronService *services.CronService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, cronService.GetJobStatus())
	}
}

// runRelayHandler relays pending booking events immediately
func runRelayHandler(cronService *services.CronService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cronService.RunRelayNow()
		c.JSON(http.StatusOK, gin.H{"message": "Outbox relay completed"})
	}
}

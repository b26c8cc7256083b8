package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/skillswap-api/api/swagger"
	"github.com/noah-isme/skillswap-api/internal/handler"
	"github.com/noah-isme/skillswap-api/internal/middleware"
	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/internal/repository"
	"github.com/noah-isme/skillswap-api/internal/service"
	"github.com/noah-isme/skillswap-api/pkg/cache"
	"github.com/noah-isme/skillswap-api/pkg/config"
	"github.com/noah-isme/skillswap-api/pkg/database"
	"github.com/noah-isme/skillswap-api/pkg/jobs"
	"github.com/noah-isme/skillswap-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/skillswap-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/skillswap-api/pkg/middleware/requestid"
	"github.com/noah-isme/skillswap-api/pkg/payments"
)

// @title SkillSwap API
// @version 1.0.0
// @description Peer-to-peer class marketplace: catalog, scheduling, paid checkout and skill trades.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, redisClient != nil)

	store := repository.NewStore(db, logr)
	catalogRepo := repository.NewCatalogRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	slotRepo := repository.NewTimeSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)

	messagingSvc := service.NewMessagingService(store, conversationRepo, logr)
	dispatcher := service.NewNotificationDispatcher(messagingSvc, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
	}, metricsSvc, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	catalogSvc := service.NewCatalogService(store, catalogRepo, cacheSvc, cfg.Payments.Currency, repository.IsForeignKeyViolation, validate, logr)
	reviewSvc := service.NewReviewService(store, reviewRepo, catalogRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(store, enrollmentRepo, bookingRepo, validate, metricsSvc, logr)
	bookingSvc := service.NewBookingService(store, bookingRepo, slotRepo, enrollmentSvc, metricsSvc, logr)
	scheduleSvc := service.NewScheduleService(store, slotRepo, catalogRepo, bookingRepo, service.NewExportService(logr), validate, logr)
	tradeSvc := service.NewTradeService(store, tradeRepo, catalogRepo, enrollmentSvc, dispatcher, cfg.Trades.OfferTTL, validate, metricsSvc, logr)
	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		Tx:          store,
		Provider:    payments.NewStripeProvider(cfg.Payments, logr),
		Payments:    paymentRepo,
		Events:      cacheRepo,
		Catalog:     catalogRepo,
		Users:       userRepo,
		Slots:       slotRepo,
		Enrollments: enrollmentSvc,
		Bookings:    bookingSvc,
		Validator:   validate,
		Metrics:     metricsSvc,
		Logger:      logr,
	}, service.PaymentConfig{
		Currency:        cfg.Payments.Currency,
		PublicBaseURL:   cfg.Payments.PublicBaseURL,
		ReconcileWindow: cfg.Payments.ReconcileWindow,
		WebhookEventTTL: cfg.Payments.WebhookEventTTL,
	})
	authSvc := service.NewAuthService(userRepo, cacheRepo, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, userField))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics"))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Catalog:    handler.NewCatalogHandler(catalogSvc, reviewSvc),
		Schedule:   handler.NewScheduleHandler(scheduleSvc),
		Booking:    handler.NewBookingHandler(bookingSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		Payment:    handler.NewPaymentHandler(paymentSvc),
		Trade:      handler.NewTradeHandler(tradeSvc),
		Metrics:    handler.NewMetricsHandler(metricsSvc, checks),
	}, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func userField(c *gin.Context) []zap.Field {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil {
		return nil
	}
	return []zap.Field{zap.String("user_id", claims.UserID)}
}

// Package main is the entry point for the leadgrid-api server. The
// website itself is static; this process serves the shop, auth, usage,
// and download APIs behind it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/database"
	"github.com/leadgrid/leadgrid-api/internal/gateway/alipay"
	"github.com/leadgrid/leadgrid-api/internal/gateway/paypal"
	"github.com/leadgrid/leadgrid-api/internal/http/handlers"
	"github.com/leadgrid/leadgrid-api/internal/http/mw"
	"github.com/leadgrid/leadgrid-api/internal/logging"
	"github.com/leadgrid/leadgrid-api/internal/mailer"
	"github.com/leadgrid/leadgrid-api/internal/repository"
	"github.com/leadgrid/leadgrid-api/internal/service"
	"github.com/leadgrid/leadgrid-api/internal/storage"
	"github.com/leadgrid/leadgrid-api/internal/version"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting leadgrid-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	var mail mailer.Mailer
	if cfg.ResendAPIKey != "" {
		mail = mailer.NewResendMailer(cfg.ResendAPIKey, cfg.ResendFromAddress)
	} else {
		logger.Warn("RESEND_API_KEY not set - transactional email disabled")
		mail = mailer.NewLogMailer(logger)
	}

	var alipayGW service.AlipayGateway
	if cfg.AlipayEnabled() {
		client, err := alipay.New(alipay.Config{
			AppID:           cfg.AlipayAppID,
			PrivateKeyPEM:   cfg.AlipayPrivateKey,
			AlipayPublicPEM: cfg.AlipayPublicKey,
			GatewayURL:      cfg.AlipayGatewayURL,
			NotifyURL:       cfg.AlipayNotifyURL,
		}, constants.GatewayTimeout)
		if err != nil {
			logger.Error("failed to initialize alipay client", "error", err)
			os.Exit(1)
		}
		alipayGW = client
		logger.Info("alipay gateway enabled", "app_id", cfg.AlipayAppID)
	}

	var paypalGW service.PayPalGateway
	if cfg.PayPalEnabled() {
		client, err := paypal.New(paypal.Config{
			ClientID: cfg.PayPalClientID,
			Secret:   cfg.PayPalSecret,
			BaseURL:  cfg.PayPalBaseURL,
		}, constants.GatewayTimeout)
		if err != nil {
			logger.Error("failed to initialize paypal client", "error", err)
			os.Exit(1)
		}
		paypalGW = client
		logger.Info("paypal gateway enabled", "base_url", cfg.PayPalBaseURL)
	}

	services := service.NewServices(cfg, repos, mail, alipayGW, paypalGW, logger)

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.CleanupEnabled {
		go services.Cleanup.RunScheduled(ctx)
		logger.Info("cleanup sweeps started", "interval", cfg.CleanupInterval.String())
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)

	// IP blocklist sits early in the chain to reject bad actors before
	// any work happens.
	if cfg.BlocklistEnabled() {
		s3Client, err := storage.NewClient(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize storage client", "error", err)
			os.Exit(1)
		}
		blocklist := mw.NewIPBlocklist(mw.BlocklistConfig{
			S3Client: s3Client,
			Bucket:   cfg.BlocklistBucket,
			Key:      cfg.BlocklistKey,
			Logger:   logger,
		})
		router.Use(blocklist.Middleware())
		logger.Info("operator blocklist enabled", "bucket", cfg.BlocklistBucket, "key", cfg.BlocklistKey)
	}

	abuse := mw.NewAbuseTracker(mw.AbuseConfig{
		Window:    cfg.AbuseWindow,
		Threshold: cfg.AbuseThreshold,
		BlockFor:  cfg.AbuseBlockFor,
		Logger:    logger,
	})
	abuse.Start(ctx)
	router.Use(abuse.Middleware())

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	router.Use(httprate.LimitByIP(constants.GlobalIPRateLimitPerMinute, time.Minute))

	// Global concurrency throttle - prevent system overload
	router.Use(middleware.Throttle(100))

	humaConfig := huma.DefaultConfig("LeadGrid API", v.Version)
	humaConfig.Info.Description = "Shop, licensing, and download backend for the LeadGrid desktop tools."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	api := humachi.New(router, humaConfig)

	// Protected and admin routes share a docs-less config; the public
	// OpenAPI spec only documents the shopper-facing surface.
	protectedConfig := huma.DefaultConfig("LeadGrid API", v.Version)
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	huma.Get(api, "/api/v1/health", handlers.HealthCheck)

	orderHandler := handlers.NewOrderHandler(services.Order, logger)
	huma.Post(api, "/api/v1/payment", orderHandler.CreatePayment)
	huma.Post(api, "/api/v1/create-renewal-order", orderHandler.CreateRenewalOrder)
	huma.Get(api, "/api/v1/check-status", orderHandler.CheckStatus)
	huma.Post(api, "/api/v1/check-payment-status", orderHandler.CheckPaymentStatus)
	huma.Post(api, "/api/v1/paypal-create-order", orderHandler.CreatePayPalOrder)
	huma.Post(api, "/api/v1/paypal-capture-order", orderHandler.CapturePayPalOrder)

	authHandler := handlers.NewAuthHandler(services.Account, services.Order, logger)
	huma.Post(api, "/api/v1/auth-register", authHandler.Register)
	huma.Post(api, "/api/v1/auth-login", authHandler.Login)
	huma.Post(api, "/api/v1/auth-verify-token", authHandler.VerifyToken)
	huma.Post(api, "/api/v1/auth-forgot-password", authHandler.ForgotPassword)
	huma.Post(api, "/api/v1/auth-reset-password", authHandler.ResetPassword)

	usageHandler := handlers.NewUsageHandler(services.Usage, logger)
	huma.Post(api, "/api/v1/email-finder-check-usage", usageHandler.CheckUsage)
	huma.Post(api, "/api/v1/email-finder-record-search", usageHandler.RecordSearch)
	huma.Post(api, "/api/v1/email-finder-record-export", usageHandler.RecordExport)

	downloadHandler := handlers.NewDownloadHandler(services.Download, logger)
	huma.Get(api, "/api/v1/github", downloadHandler.LatestRelease)
	router.Get("/api/v1/download-proxy", downloadHandler.Proxy)
	router.Get("/api/v1/china-download-proxy", downloadHandler.ChinaProxy)

	secHandler := handlers.NewSecHeadersHandler(services.SecHeaders, logger)
	huma.Post(api, "/api/v1/security-headers", secHandler.CheckHeaders)

	// Alipay settlement callback (signature verified by handler)
	alipayNotify := handlers.NewAlipayNotifyHandler(services.Order, logger)
	router.Post("/api/v1/alipay-notify", alipayNotify.Handle)

	// Resend email events (signature verified by handler)
	if cfg.ResendWebhookSecret != "" {
		resendWebhook := handlers.NewResendWebhookHandler(cfg, repos.EmailEvent, logger)
		router.Post("/api/v1/webhooks/resend", resendWebhook.HandleWebhook)
		logger.Info("resend webhook endpoint enabled")
	}

	// Session-protected routes
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(services.Account))

		protectedAPI := humachi.New(r, protectedConfig)
		huma.Get(protectedAPI, "/api/v1/account/orders", authHandler.ListOrders)
	})

	// Operator surface; each handler checks X-Admin-Key itself.
	if cfg.AdminEnabled() {
		router.Group(func(r chi.Router) {
			adminAPI := humachi.New(r, protectedConfig)
			adminHandler := handlers.NewAdminHandler(cfg, services.Order, repos.License, repos.EmailEvent, logger)
			huma.Post(adminAPI, "/api/v1/admin/licenses/restock", adminHandler.RestockLicenses)
			huma.Get(adminAPI, "/api/v1/admin/orders/unfulfilled", adminHandler.UnfulfilledOrders)
			huma.Get(adminAPI, "/api/v1/admin/licenses", adminHandler.LicensePool)
			huma.Get(adminAPI, "/api/v1/admin/email-events", adminHandler.EmailEvents)
		})
		logger.Info("admin endpoints enabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

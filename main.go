package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/username/optionfolio/backend/src/brokerage"
	"github.com/username/optionfolio/backend/src/config"
	"github.com/username/optionfolio/backend/src/database"
	"github.com/username/optionfolio/backend/src/handlers"
	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/processors"
	"github.com/username/optionfolio/backend/src/security"
	"github.com/username/optionfolio/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Optionfolio backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	userHandler := handlers.NewUserHandler(authService)

	brokerClient := brokerage.NewClient(
		config.Cfg.BrokerBaseURL,
		config.Cfg.BrokerUsername,
		config.Cfg.BrokerPassword,
	)
	ledgerService := services.NewLedgerService(brokerClient, config.Cfg.BrokerAccountID, config.Cfg.BrokerSource)
	quoteService := services.NewQuoteService(config.Cfg.MarketDataBaseURL)
	screener := processors.NewScreener(processors.ScreenThresholds{
		MinStockPrice:       config.Cfg.MinStockPrice,
		MaxSpread:           config.Cfg.MaxSpread,
		MinMidPercent:       config.Cfg.MinMidPercent,
		HighMidPercent:      config.Cfg.HighMidPercent,
		MaxDaysToExpiration: config.Cfg.MaxDaysToExpiration,
	})
	scanService := services.NewScanService(
		quoteService, screener, emailService,
		config.Cfg.Watchlist, config.Cfg.ScanSymbolDelay, config.Cfg.AlertRecipient,
	)
	consultantService := services.NewConsultantService(
		config.Cfg.LLMBaseURL, config.Cfg.LLMAPIKey, config.Cfg.LLMModel,
	)

	positionHandler := handlers.NewPositionHandler(ledgerService)
	scanHandler := handlers.NewScanHandler(scanService)
	consultantHandler := handlers.NewConsultantHandler(consultantService, ledgerService)

	logger.L.Info("Scheduling watchlist scans...", "spec", config.Cfg.ScanCronSpec)
	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(config.Cfg.ScanCronSpec, func() {
		if _, err := scanService.StartScan(context.Background()); err != nil {
			logger.L.Warn("Scheduled scan not started", "error", err)
		}
	}); err != nil {
		logger.L.Error("Invalid scan cron spec", "spec", config.Cfg.ScanCronSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)

	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.Handle("POST /logout", userHandler.AuthMiddleware(http.HandlerFunc(userHandler.LogoutUserHandler)))
	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", handlers.CSRFMiddleware()(authActionRouter)))

	csrfProtection := handlers.CSRFMiddleware()
	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handler))
	}

	apiRouter.Handle("GET /api/positions/aggregated", applyCsrfAndAuth(positionHandler.GetAggregatedPositions))
	apiRouter.Handle("GET /api/transactions", applyCsrfAndAuth(positionHandler.GetTransactions))
	apiRouter.Handle("POST /api/transactions/sync", applyCsrfAndAuth(positionHandler.SyncTransactions))
	apiRouter.Handle("GET /api/scan/results", applyCsrfAndAuth(scanHandler.GetResults))
	apiRouter.Handle("POST /api/scan/refresh", applyCsrfAndAuth(scanHandler.RefreshScan))
	apiRouter.Handle("GET /api/scan/events", applyCsrfAndAuth(scanHandler.Events))
	apiRouter.Handle("POST /api/consultant", applyCsrfAndAuth(consultantHandler.Ask))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "OPTIONFOLIO Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     finalHandler,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the scan events stream must stay open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}

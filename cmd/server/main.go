package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fondfamilial/backend/docs"
	"github.com/fondfamilial/backend/internal/database"
	"github.com/fondfamilial/backend/internal/events"
	"github.com/fondfamilial/backend/internal/handlers"
	mW "github.com/fondfamilial/backend/internal/middleware"
	"github.com/fondfamilial/backend/internal/services"
	"github.com/fondfamilial/backend/internal/store"
)

// @title Fond Familial Backend API
// @version 1.0
// @description API for the family fund ledger and distribution engine
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("amqp.url", "AMQP_URL")
	viper.BindEnv("amqp.exchange", "AMQP_EXCHANGE")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Fond Familial Backend API"
	docs.SwaggerInfo.Description = "API for the family fund ledger and distribution engine"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Initialize infrastructure
	cfg := database.LoadConfig()
	db := database.MustConnect(cfg.Postgres)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := database.ConnectRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher
	if amqpURL := viper.GetString("amqp.url"); amqpURL != "" {
		viper.SetDefault("amqp.exchange", "fond.events")
		p, err := events.NewAMQPPublisher(amqpURL, viper.GetString("amqp.exchange"), logger)
		if err != nil {
			log.Printf("AMQP connection failed, continuing without events: %v", err)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	// Initialize services
	st := store.NewPostgresStore(db)
	ledgerService := services.NewLedgerService(st, redisClient, publisher, logger)
	creditService := services.NewCreditService(st, ledgerService, logger)
	sessionService := services.NewSessionService(st, creditService, ledgerService, logger)
	cassationService := services.NewCassationService(st, ledgerService, sessionService, logger)
	memberService := services.NewMemberService(st, ledgerService, logger)

	movementHandler := handlers.NewMovementHandler(ledgerService)
	creditHandler := handlers.NewCreditHandler(creditService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	cassationHandler := handlers.NewCassationHandler(cassationService)
	memberHandler := handlers.NewMemberHandler(memberService, ledgerService)
	maintenanceHandler := handlers.NewMaintenanceHandler(ledgerService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/fonds/solde", movementHandler.FundBalance)

		r.Route("/mouvements", func(r chi.Router) {
			r.Post("/", movementHandler.Create)
			r.Get("/", movementHandler.List)
			r.Get("/{id}", movementHandler.Get)
			r.Put("/{id}", movementHandler.Update)
			r.Delete("/{id}", movementHandler.Delete)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Post("/", creditHandler.Grant)
			r.Get("/", creditHandler.List)
			r.Get("/{id}", creditHandler.Get)
			r.Delete("/{id}", creditHandler.Delete)
			r.Post("/{id}/remboursements", creditHandler.Repay)
			r.Get("/{id}/remboursements", creditHandler.Repayments)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)
			r.Get("/{id}", sessionHandler.Get)
			r.Put("/{id}/nom", sessionHandler.Rename)
			r.Delete("/{id}", sessionHandler.Delete)
			r.Post("/{id}/terminer", sessionHandler.End)
			r.Get("/{id}/membres", sessionHandler.Members)
		})

		r.Route("/cassation", func(r chi.Router) {
			r.Get("/simulation", cassationHandler.Simulate)
			r.Post("/application", cassationHandler.Apply)
			r.Get("/etat", cassationHandler.Etat)
			r.Post("/nouveau-cycle", cassationHandler.NouveauCycle)
		})

		r.Route("/membres", func(r chi.Router) {
			r.Post("/", memberHandler.Create)
			r.Get("/", memberHandler.List)
			r.Get("/{id}", memberHandler.Get)
			r.Delete("/{id}", memberHandler.Delete)
			r.Get("/{id}/mouvements", memberHandler.Movements)
			r.Get("/{id}/credits", memberHandler.Credits)
			r.Get("/{id}/epargne", memberHandler.Savings)
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/resync-soldes", maintenanceHandler.ResyncBalances)
			r.Post("/backfill-sessions", maintenanceHandler.BackfillSessions)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-tables/config"
	"github.com/yeremiapane/restaurant-tables/database"
	"github.com/yeremiapane/restaurant-tables/router"
	"github.com/yeremiapane/restaurant-tables/services"
	"github.com/yeremiapane/restaurant-tables/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}

	var events services.EventPublisher = services.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher := services.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		defer amqpPublisher.Close()
		events = amqpPublisher
		utils.InfoLogger.WithField("exchange", cfg.AMQPExchange).Info("Publishing table events to AMQP")
	} else {
		utils.InfoLogger.Info("AMQP_URL not set, table events are not published")
	}

	ledger := services.NewUsageLedger(db)
	qr := services.NewQRService(db, cfg.QRBaseURL, events)
	registry := services.NewTableRegistry(db, ledger, qr, events, services.RegistryConfig{
		CapacityMin:        cfg.TableCapacityMin,
		CapacityMax:        cfg.TableCapacityMax,
		AllocationAttempts: cfg.AllocatorMaxAttempts,
		QRTimeout:          cfg.QRProvisionTimeout,
	})

	r := router.SetupRouter(db, registry, ledger, router.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Errorf("Server shutdown: %v", err)
	}
	registry.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/shinobu-server/internal/api"
	"github.com/rongwang/shinobu-server/internal/config"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/rongwang/shinobu-server/internal/service"
	"github.com/rongwang/shinobu-server/internal/telemetry"
	"github.com/rongwang/shinobu-server/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Failed to flush traces: %v", err)
		}
	}()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}
	defer db.Close()

	// Create repository
	repo := repository.NewSQLRepository(db)

	// Create service
	logger := utils.NewLogger()
	svc := service.NewDefaultService(repo, cfg, service.WithLogger(logger))

	// Birthday gifts run in the background until shutdown
	backgroundCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go grantBirthdayGifts(backgroundCtx, svc, cfg.Economy.BirthdayCheck, logger)

	// Create API handler
	handler := api.NewHandler(svc, logger)

	// Set up Gin router
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	// Signing requests wait on approvals, so there is no write timeout
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopBackground()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

// grantBirthdayGifts checks for birthdays right away and then on every tick
func grantBirthdayGifts(ctx context.Context, svc service.Service, every time.Duration, logger *utils.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := svc.GrantBirthdayGifts(ctx, time.Now()); err != nil && ctx.Err() == nil {
			logger.Error("Failed to grant birthday gifts: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

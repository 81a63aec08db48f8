package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olyamironova/escrow-book/internal/config"
	"github.com/olyamironova/escrow-book/internal/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("ESCROWBOOK_CONFIG"), "path to a config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to start", zap.Error(err))
	}
	defer a.Close()

	httpServer := a.http.Server(cfg.HTTP.Addr)
	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		zapLogger.Fatal("Failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		zapLogger.Info("Starting gRPC server", zap.String("addr", cfg.GRPC.Addr))
		if err := a.grpc.Serve(lis); err != nil {
			zapLogger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	a.grpc.GracefulStop()
	zapLogger.Info("Server exited properly")
}

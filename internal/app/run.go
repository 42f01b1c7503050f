package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/config"
	"hmac-gateway/internal/server"
)

// Version is set at build time.
var Version = "dev"

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()

	logging.Info("Starting HMAC gateway",
		logging.Int("cpus", runtime.NumCPU()),
		logging.String("version", Version),
	)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	srv := server.New(app.Router(), cfg.Port)
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		return err
	}
	logging.Info("Server listening",
		logging.String("addr", srv.Addr()),
		logging.String("protected_prefix", cfg.ProtectedPathPrefix),
		logging.String("upstream", cfg.UpstreamURL),
	)

	select {
	case <-ctx.Done():
		logging.Info("Shutting down server...")
	case err := <-srv.Errors():
		if err != nil {
			logging.Error("Server stopped unexpectedly", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}

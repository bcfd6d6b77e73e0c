package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/backendstub"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/observability"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	secret := flag.String("jwt-secret", "stub-secret", "JWT signing secret")
	rateEvery := flag.Int("rate-limit-every", 0, "inject a 429 on every Nth request (0 disables)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	server, err := backendstub.NewServer(backendstub.Options{
		JWTSecret:      *secret,
		TokenTTL:       12 * time.Hour,
		Logger:         logger,
		RateLimitEvery: *rateEvery,
	})
	if err != nil {
		logger.Fatal("stub init failed", zap.Error(err))
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		_ = server.Shutdown()
	}()

	logger.Info("stub backend listening",
		zap.String("addr", *addr),
		zap.String("seller", "seller@example.com / password"),
		zap.String("admin", "admin@example.com / password"))
	if err := server.Listen(*addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

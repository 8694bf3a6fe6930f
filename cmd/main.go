package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logutil.InitLogger()

	logger := logutil.GetLogger()
	defer logger.Sync()

	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigch
		logutil.GetLogger().Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		logutil.GetLogger().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

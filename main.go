package main

import (
	"bitwise74/pulsestream/app"
	"bitwise74/pulsestream/config"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	if err := app.MakeLogger(viper.GetString("app.log_level")); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewRouter(ctx)
	if err != nil {
		panic(err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("host.port")),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end once a shutdown signal arrives
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server failed", zap.Error(err))
		}
	}()

	zap.L().Info("Server starting", zap.String("addr", server.Addr))

	<-ctx.Done()
	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Server forced to close", zap.Error(err))
	}

	// Waits for running pipelines so no record is left mid transition
	a.Close()
	zap.L().Info("Server exited")
}

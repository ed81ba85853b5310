package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calmid/go-grant/pkg/container"
)

func main() {
	ctx := context.Background()

	if err := Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	c, err := container.New(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	srvErr := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", c.HTTPServer.Addr, "issuer", c.Config.Issuer)
		srvErr <- c.HTTPServer.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		c.Logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.HTTPServer.Shutdown(shutdownCtx); err != nil {
			return err
		}

		c.Logger.Info("shutdown completed")
	}

	return nil
}

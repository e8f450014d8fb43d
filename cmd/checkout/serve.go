package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smart-unicom/checkout/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the checkout HTTP server",
	Long: `Start the checkout HTTP server.

Endpoints:
  POST /checkouts                create a payment and return the approval URL
  POST /checkouts/:id/execute    execute an approved payment
  GET  /checkouts/:id            fetch the gateway status of a payment`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides http.addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.close()

	addr := rt.cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(rt.checkout, rt.log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	rt.log.Info("shutting down checkout http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

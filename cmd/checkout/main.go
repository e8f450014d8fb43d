// Command checkout 重定向支付结账服务和命令行工具
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smart-unicom/checkout"
	"github.com/smart-unicom/checkout/config"
)

var version = "dev"

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:           "checkout",
		Short:         "Redirect-based checkout against PayPal-style gateways",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (toml, yaml or json)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app 命令运行所需的依赖
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	bus      EventBus.Bus
	checkout *checkout.Checkout
}

// close 等待事件处理完成并上报剩余的错误
func (rt *app) close() {
	rt.bus.WaitAsync()
	if rt.cfg.Sentry.DSN != "" {
		sentry.Flush(2 * time.Second)
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	bus := EventBus.New()
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     version,
		}); err != nil {
			return nil, fmt.Errorf("failed to init sentry: %w", err)
		}
		if err := subscribeReporter(bus, sentry.CurrentHub()); err != nil {
			return nil, err
		}
	}
	gw, err := cfg.NewGateway(logger)
	if err != nil {
		return nil, err
	}
	c, err := checkout.New(gw, cfg.Options(logger, bus))
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: logger, bus: bus, checkout: c}, nil
}

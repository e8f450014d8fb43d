package config

import (
	"fmt"

	"github.com/asaskevich/EventBus"
	"github.com/sirupsen/logrus"

	"github.com/smart-unicom/checkout"
)

// 网关提供方
const (
	ProviderPaypal       = "paypal"        // PayPal REST v1 Payments
	ProviderPaypalOrders = "paypal-orders" // PayPal v2 Orders
	ProviderStripe       = "stripe"        // Stripe 结账会话
	ProviderDummy        = "dummy"         // 内存模拟
)

// NewGateway 按配置创建网关适配器
// 参数:
//   - logger: 日志
//
// 返回:
//   - checkout.Gateway: 网关适配器
//   - error: 提供方未知或凭证无效时返回错误
func (c *Config) NewGateway(logger *logrus.Logger) (checkout.Gateway, error) {
	g := c.Gateway
	switch g.Provider {
	case ProviderPaypal:
		return checkout.NewPaypalGateway(checkout.PaypalConfig{
			ClientID:    g.ClientID,
			Secret:      g.ClientSecret,
			Environment: g.Environment,
			Endpoint:    g.Endpoint,
			Timeout:     c.Checkout.Timeout,
			Logger:      logger,
		})
	case ProviderPaypalOrders:
		return checkout.NewPaypalOrderGateway(g.ClientID, g.ClientSecret, g.Environment == checkout.EnvLive, logger)
	case ProviderStripe:
		return checkout.NewStripeGateway(checkout.StripeConfig{
			SecretKey: g.ClientSecret,
			Endpoint:  g.Endpoint,
			Timeout:   c.Checkout.Timeout,
			Logger:    logger,
		})
	case ProviderDummy:
		return checkout.NewDummyGateway(true), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", g.Provider)
	}
}

// Options 返回结账编排器配置
func (c *Config) Options(logger *logrus.Logger, bus EventBus.Bus) checkout.Options {
	return checkout.Options{
		Currency: c.Checkout.Currency,
		Intent:   c.Checkout.Intent,
		Timeout:  c.Checkout.Timeout,
		Retry: checkout.RetryPolicy{
			MaxRetries: c.Checkout.Retry,
			Backoff:    c.Checkout.RetryBackoff,
		},
		Breaker: checkout.BreakerSettings{
			Enabled:             c.Checkout.Breaker.Enabled,
			ConsecutiveFailures: c.Checkout.Breaker.Failures,
			OpenTimeout:         c.Checkout.Breaker.OpenTimeout,
		},
		Logger: logger,
		Bus:    bus,
	}
}

// NewLogger 按日志配置创建 logrus 日志
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Package config 结账服务配置
// 默认值 < 配置文件 < .env < CHECKOUT_* 环境变量
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config 结账服务配置
type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
}

// GatewayConfig 网关凭证和环境
type GatewayConfig struct {
	Provider     string `mapstructure:"provider" validate:"oneof=paypal paypal-orders stripe dummy"`
	ClientID     string `mapstructure:"client_id" validate:"required_unless=Provider dummy Provider stripe"`
	ClientSecret string `mapstructure:"client_secret" validate:"required_unless=Provider dummy"`
	Environment  string `mapstructure:"environment" validate:"oneof=sandbox live"`
	Endpoint     string `mapstructure:"endpoint" validate:"omitempty,url"`
}

// CheckoutConfig 结账流程设置
type CheckoutConfig struct {
	Currency     string        `mapstructure:"currency" validate:"required,len=3"`
	Intent       string        `mapstructure:"intent" validate:"oneof=sale authorize order"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retry        int           `mapstructure:"retry" validate:"gte=0,lte=10"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig 熔断设置
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Failures    uint32        `mapstructure:"failures" validate:"required_if=Enabled true"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" validate:"gte=0"`
}

// HTTPConfig HTTP 服务设置
type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// LogConfig 日志设置
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// SentryConfig 错误上报设置，DSN 为空时不上报
type SentryConfig struct {
	DSN         string `mapstructure:"dsn" validate:"omitempty,url"`
	Environment string `mapstructure:"environment"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Provider:    "paypal",
			Environment: "sandbox",
		},
		Checkout: CheckoutConfig{
			Currency: "USD",
			Intent:   "sale",
			Timeout:  30 * time.Second,
			Retry:    0,
			Breaker: BreakerConfig{
				Failures:    5,
				OpenTimeout: time.Minute,
			},
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

type setting struct {
	key   string
	value interface{}
}

// settings 按 viper 的键名展开配置
func (c *Config) settings() []setting {
	return []setting{
		{"gateway.provider", c.Gateway.Provider},
		{"gateway.client_id", c.Gateway.ClientID},
		{"gateway.client_secret", c.Gateway.ClientSecret},
		{"gateway.environment", c.Gateway.Environment},
		{"gateway.endpoint", c.Gateway.Endpoint},
		{"checkout.currency", c.Checkout.Currency},
		{"checkout.intent", c.Checkout.Intent},
		{"checkout.timeout", c.Checkout.Timeout},
		{"checkout.retry", c.Checkout.Retry},
		{"checkout.retry_backoff", c.Checkout.RetryBackoff},
		{"checkout.breaker.enabled", c.Checkout.Breaker.Enabled},
		{"checkout.breaker.failures", c.Checkout.Breaker.Failures},
		{"checkout.breaker.open_timeout", c.Checkout.Breaker.OpenTimeout},
		{"http.addr", c.HTTP.Addr},
		{"log.level", c.Log.Level},
		{"log.format", c.Log.Format},
		{"sentry.dsn", c.Sentry.DSN},
		{"sentry.environment", c.Sentry.Environment},
	}
}

var validate = validator.New()

// Load 加载配置
// 参数:
//   - path: 配置文件路径（toml、yaml 或 json），为空时只使用默认值和环境变量
//
// 返回:
//   - *Config: 配置
//   - error: 文件无法读取或校验失败时返回错误
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for _, s := range DefaultConfig().settings() {
		v.SetDefault(s.key, s.value)
	}
	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Render 将配置渲染为 TOML
// 时间间隔写为 "30s" 形式，便于 Load 读回
func (c *Config) Render() ([]byte, error) {
	root := map[string]interface{}{}
	for _, s := range c.settings() {
		parts := strings.Split(s.key, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			next, ok := node[p].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				node[p] = next
			}
			node = next
		}
		value := s.value
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		node[parts[len(parts)-1]] = value
	}
	var buf bytes.Buffer
	buf.WriteString("# Checkout configuration\n")
	if err := toml.NewEncoder(&buf).Encode(root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault 将默认配置写入文件
// 参数:
//   - path: 文件路径
//
// 返回:
//   - error: 渲染或写入失败时返回错误
func WriteDefault(path string) error {
	content, err := DefaultConfig().Render()
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0600)
}

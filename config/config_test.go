package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-unicom/checkout"
)

// chdir 切换到临时目录，避免读取工作目录中的 .env
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHECKOUT_GATEWAY_PROVIDER", "dummy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dummy", cfg.Gateway.Provider)
	assert.Equal(t, "USD", cfg.Checkout.Currency)
	assert.Equal(t, 30*time.Second, cfg.Checkout.Timeout)
	assert.Equal(t, 0, cfg.Checkout.Retry)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "checkout.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[gateway]
provider = "paypal"
client_id = "file-id"
client_secret = "file-secret"
environment = "live"

[checkout]
currency = "EUR"
timeout = "5s"
retry = 2
retry_backoff = "200ms"

[checkout.breaker]
enabled = true
failures = 3
`), 0600))
	t.Setenv("CHECKOUT_GATEWAY_CLIENT_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-id", cfg.Gateway.ClientID)
	assert.Equal(t, "env-secret", cfg.Gateway.ClientSecret)
	assert.Equal(t, "live", cfg.Gateway.Environment)
	assert.Equal(t, "EUR", cfg.Checkout.Currency)
	assert.Equal(t, 5*time.Second, cfg.Checkout.Timeout)
	assert.Equal(t, 2, cfg.Checkout.Retry)
	assert.Equal(t, 200*time.Millisecond, cfg.Checkout.RetryBackoff)
	assert.True(t, cfg.Checkout.Breaker.Enabled)
	assert.Equal(t, uint32(3), cfg.Checkout.Breaker.Failures)
	assert.Equal(t, time.Minute, cfg.Checkout.Breaker.OpenTimeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHECKOUT_GATEWAY_PROVIDER=dummy\nCHECKOUT_LOG_LEVEL=debug\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv("CHECKOUT_GATEWAY_PROVIDER")
		os.Unsetenv("CHECKOUT_LOG_LEVEL")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dummy", cfg.Gateway.Provider)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	// paypal 需要凭证
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientID")

	t.Setenv("CHECKOUT_GATEWAY_PROVIDER", "bitpay")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Provider")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "checkout.toml")
	require.NoError(t, WriteDefault(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[checkout.breaker]")
	assert.Contains(t, string(content), "30s")

	t.Setenv("CHECKOUT_GATEWAY_PROVIDER", "dummy")
	cfg, err := Load(path)
	require.NoError(t, err)
	want := DefaultConfig()
	want.Gateway.Provider = "dummy"
	assert.Equal(t, want, cfg)
}

func TestNewGateway(t *testing.T) {
	logger := logrus.New()
	cfg := DefaultConfig()

	cfg.Gateway.Provider = ProviderDummy
	gw, err := cfg.NewGateway(logger)
	require.NoError(t, err)
	assert.IsType(t, &checkout.DummyGateway{}, gw)

	cfg.Gateway.Provider = ProviderPaypal
	cfg.Gateway.ClientID, cfg.Gateway.ClientSecret = "id", "secret"
	gw, err = cfg.NewGateway(logger)
	require.NoError(t, err)
	assert.IsType(t, &checkout.PaypalGateway{}, gw)

	cfg.Gateway.Provider = ProviderStripe
	gw, err = cfg.NewGateway(logger)
	require.NoError(t, err)
	assert.IsType(t, &checkout.StripeGateway{}, gw)

	cfg.Gateway.Provider = "unknown"
	_, err = cfg.NewGateway(logger)
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Checkout.Retry = 3
	cfg.Checkout.Breaker.Enabled = true
	opts := cfg.Options(nil, nil)
	assert.Equal(t, "USD", opts.Currency)
	assert.Equal(t, "sale", opts.Intent)
	assert.Equal(t, 3, opts.Retry.MaxRetries)
	assert.True(t, opts.Breaker.Enabled)
	assert.Equal(t, uint32(5), opts.Breaker.ConsecutiveFailures)

	_, err := checkout.New(checkout.NewDummyGateway(true), opts)
	assert.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "json"
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

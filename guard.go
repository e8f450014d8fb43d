// Package checkout 重定向支付结账相关功能
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// RetryPolicy 传输层重试策略
// 只用于 CREATE 和只读查询，EXECUTE 不重试以免重复扣款
type RetryPolicy struct {
	MaxRetries int           // 网关不可用时的最大重试次数，0 表示不重试
	Backoff    time.Duration // 重试间隔，每次翻倍
}

// BreakerSettings 熔断设置
type BreakerSettings struct {
	Enabled             bool          // 是否启用熔断
	ConsecutiveFailures uint32        // 连续失败多少次后熔断
	OpenTimeout         time.Duration // 熔断后多久进入半开状态
}

// guardedGateway 为网关调用加上超时、重试和熔断
type guardedGateway struct {
	next    Gateway
	timeout time.Duration
	retry   RetryPolicy
	breaker *gobreaker.CircuitBreaker[any]
}

func newGuardedGateway(next Gateway, timeout time.Duration, retry RetryPolicy, bs BreakerSettings) *guardedGateway {
	g := &guardedGateway{next: next, timeout: timeout, retry: retry}
	if bs.Enabled {
		failures := bs.ConsecutiveFailures
		if failures == 0 {
			failures = 5
		}
		g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    "checkout-gateway",
			Timeout: bs.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			// 只有网关不可用才计为失败，业务拒绝不影响熔断
			IsSuccessful: func(err error) bool {
				return err == nil || KindOf(err) != KindGatewayUnavailable
			},
		})
	}
	return g
}

func (g *guardedGateway) CreateIntent(ctx context.Context, intent PaymentIntent) (*IntentHandle, error) {
	return withRetry(ctx, g, func(ctx context.Context) (*IntentHandle, error) {
		return g.next.CreateIntent(ctx, intent)
	})
}

func (g *guardedGateway) FetchIntent(ctx context.Context, paymentID string) (*IntentStatus, error) {
	return withRetry(ctx, g, func(ctx context.Context) (*IntentStatus, error) {
		return g.next.FetchIntent(ctx, paymentID)
	})
}

// ExecuteIntent 只调用一次，不重试
func (g *guardedGateway) ExecuteIntent(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error) {
	res, err := g.once(ctx, func(ctx context.Context) (any, error) {
		return g.next.ExecuteIntent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*ExecutionResult), nil
}

// backOff 按重试策略生成退避序列
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.Backoff > 0 {
		b = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(p.Backoff),
			backoff.WithMultiplier(2),
			backoff.WithRandomizationFactor(0),
			backoff.WithMaxElapsedTime(0),
		)
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// withRetry 执行网关调用，只有网关不可用时按策略重试
func withRetry[T any](ctx context.Context, g *guardedGateway, call func(context.Context) (*T, error)) (*T, error) {
	res, err := backoff.RetryWithData(func() (*T, error) {
		res, err := g.once(ctx, func(ctx context.Context) (any, error) {
			return call(ctx)
		})
		if err != nil {
			if KindOf(err) != KindGatewayUnavailable {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return res.(*T), nil
	}, g.retry.backOff(ctx))
	if err != nil {
		if KindOf(err) == "" {
			err = unavailable(err)
		}
		return nil, err
	}
	return res, nil
}

// once 在超时和熔断保护下执行一次调用
func (g *guardedGateway) once(ctx context.Context, call func(context.Context) (any, error)) (any, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	run := func() (any, error) {
		res, err := call(ctx)
		if err != nil {
			return nil, classify(ctx, err)
		}
		return res, nil
	}
	if g.breaker == nil {
		return run()
	}
	res, err := g.breaker.Execute(run)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, unavailable(err)
	}
	return res, err
}

// classify 将未分类的错误和超时归为网关不可用
func classify(ctx context.Context, err error) error {
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return &Error{Kind: KindGatewayUnavailable, Message: "gateway call timed out", Err: err}
	}
	return unavailable(err)
}

package main

import (
	"github.com/asaskevich/EventBus"
	"github.com/getsentry/sentry-go"

	"github.com/smart-unicom/checkout"
)

// reportKinds 需要上报的错误分类
// ConfirmationFailed 需要人工核对，AuthFailure 说明凭证配置有误
var reportKinds = map[checkout.Kind]bool{
	checkout.KindConfirmationFailed: true,
	checkout.KindAuthFailure:        true,
}

// subscribeReporter 订阅状态迁移事件，将需要人工处理的失败上报到 Sentry
func subscribeReporter(bus EventBus.Bus, hub *sentry.Hub) error {
	return bus.SubscribeAsync(checkout.TopicTransition, func(ev checkout.Event) {
		reportEvent(hub, ev)
	}, false)
}

func reportEvent(hub *sentry.Hub, ev checkout.Event) {
	if ev.Err == nil || !reportKinds[ev.Err.Kind] {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("op", ev.Op)
		scope.SetTag("kind", string(ev.Err.Kind))
		if ev.PaymentID != "" {
			scope.SetTag("payment_id", ev.PaymentID)
		}
		if ev.InvoiceNumber != "" {
			scope.SetTag("invoice_number", ev.InvoiceNumber)
		}
		if ev.Err.Code != "" {
			scope.SetTag("code", ev.Err.Code)
		}
		if ev.Err.Kind == checkout.KindConfirmationFailed {
			scope.SetLevel(sentry.LevelFatal)
		}
		hub.CaptureException(ev.Err)
	})
}

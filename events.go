// Package checkout 重定向支付结账相关功能
package checkout

import (
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/sirupsen/logrus"
)

// TopicTransition 状态迁移事件的主题
const TopicTransition = "checkout:transition"

// Event 结账状态迁移事件
type Event struct {
	Op            string        // 操作名：create、execute、reconcile
	PaymentID     string        // 支付ID
	InvoiceNumber string        // 发票号
	From          State         // 迁移前状态
	To            State         // 迁移后状态
	Err           *Error        // 失败原因，仅迁移到 FAILED 时设置
	Duration      time.Duration // 自本次调用开始的耗时
	At            time.Time     // 发生时间
}

// Fields 返回用于日志的字段
func (e Event) Fields() logrus.Fields {
	fields := logrus.Fields{
		"op":          e.Op,
		"from":        e.From.String(),
		"state":       e.To.String(),
		"duration_ms": e.Duration.Milliseconds(),
	}
	if e.PaymentID != "" {
		fields["payment_id"] = e.PaymentID
	}
	if e.InvoiceNumber != "" {
		fields["invoice_number"] = e.InvoiceNumber
	}
	if e.Err != nil {
		fields["kind"] = string(e.Err.Kind)
		if e.Err.Code != "" {
			fields["code"] = e.Err.Code
		}
	}
	return fields
}

// emitter 将事件写入日志并发布到事件总线
// 日志和事件的结果不影响任何业务判断
type emitter struct {
	log *logrus.Entry
	bus EventBus.Bus
}

func (em emitter) emit(ev Event) {
	entry := em.log.WithFields(ev.Fields())
	switch {
	case ev.Err != nil && ev.Err.Kind == KindConfirmationFailed:
		entry.WithError(ev.Err).Error("checkout transition")
	case ev.Err != nil:
		entry.WithError(ev.Err).Warn("checkout transition")
	default:
		entry.Info("checkout transition")
	}
	if em.bus != nil {
		em.bus.Publish(TopicTransition, ev)
	}
}

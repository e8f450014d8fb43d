package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-unicom/checkout"
)

// captureHub 返回一个只记录事件、不发送的 Sentry Hub
func captureHub(t *testing.T) (*sentry.Hub, func() []*sentry.Event) {
	t.Helper()
	var mu sync.Mutex
	var events []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		SampleRate: 1.0,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, event)
			return nil
		},
	})
	require.NoError(t, err)
	return sentry.NewHub(client, sentry.NewScope()), func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func TestReportEvent(t *testing.T) {
	hub, captured := captureHub(t)

	reportEvent(hub, checkout.Event{Op: "create", To: checkout.StateCreated})
	reportEvent(hub, checkout.Event{Op: "create", To: checkout.StateFailed, Err: &checkout.Error{Kind: checkout.KindGatewayRejected}})
	assert.Empty(t, captured())

	reportEvent(hub, checkout.Event{
		Op:            "execute",
		PaymentID:     "PAY-1",
		InvoiceNumber: "INV-1",
		To:            checkout.StateFailed,
		Err:           &checkout.Error{Kind: checkout.KindConfirmationFailed, Op: "execute"},
	})
	events := captured()
	require.Len(t, events, 1)
	assert.Equal(t, "PAY-1", events[0].Tags["payment_id"])
	assert.Equal(t, "ConfirmationFailed", events[0].Tags["kind"])
	assert.Equal(t, sentry.LevelFatal, events[0].Level)
}

func TestSubscribeReporter(t *testing.T) {
	hub, captured := captureHub(t)
	bus := EventBus.New()
	require.NoError(t, subscribeReporter(bus, hub))

	bus.Publish(checkout.TopicTransition, checkout.Event{
		Op:  "create",
		To:  checkout.StateFailed,
		Err: &checkout.Error{Kind: checkout.KindAuthFailure, Code: "invalid_client"},
	})
	bus.WaitAsync()

	events := captured()
	require.Len(t, events, 1)
	assert.Equal(t, "invalid_client", events[0].Tags["code"])
}

func TestReadCreateRequest(t *testing.T) {
	req, err := readCreateRequest(strings.NewReader(`{
		"payer": {"method": "paypal"},
		"amount": {"shipping": 0, "tax": 0, "subtotal": 10.10, "total": 10.10},
		"return_url": "https://shop.example.com"
	}`))
	require.NoError(t, err)
	assert.NotEmpty(t, req.InvoiceNumber)
	assert.Equal(t, json.Number("10.10"), req.Amount["total"])

	_, err = readCreateRequest(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := t.TempDir() + "/checkout.toml"
	var out bytes.Buffer
	configInitCmd.SetOut(&out)

	require.NoError(t, runConfigInit(configInitCmd, []string{path}))
	assert.Contains(t, out.String(), path)

	err := runConfigInit(configInitCmd, []string{path})
	assert.Error(t, err)
}

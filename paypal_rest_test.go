package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePaypal PayPal v1 Payments 接口的模拟服务
type fakePaypal struct {
	mu          sync.Mutex
	tokens      int
	rejectToken bool   // 令牌接口返回 invalid_client
	expireOnce  bool   // 下一次业务请求返回 401
	createError int    // 创建接口返回的状态码，0 表示成功
	fetchState  string // 查询返回的状态
	created     []paypalPayment
	executed    []paypalExecution
	requestIDs  []string
}

func (f *fakePaypal) handler(t *testing.T) http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.expireOnce {
			f.expireOnce = false
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
			return false
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer A21AA") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
			return false
		}
		f.requestIDs = append(f.requestIDs, r.Header.Get("PayPal-Request-Id"))
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		f.mu.Lock()
		reject := f.rejectToken
		f.tokens++
		f.mu.Unlock()
		if !ok || id != "client-id" || secret != "secret" || reject {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_client",
				"error_description": "Client Authentication failed",
			})
			return
		}
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "A21AA-token",
			"token_type":   "Bearer",
			"expires_in":   32400,
		})
	})
	mux.HandleFunc("POST /v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var p paypalPayment
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		f.mu.Lock()
		f.created = append(f.created, p)
		status := f.createError
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]interface{}{
				"name":     "VALIDATION_ERROR",
				"message":  "Invalid request - see details",
				"debug_id": "dbg-1",
				"details":  []map[string]string{{"field": "transactions[0].amount", "issue": "Amount cannot be zero"}},
			})
			return
		}
		p.ID = "PAY-5YK922393D847794YKER7MUI"
		p.State = "created"
		p.Links = []paypalLink{
			{Href: "https://api-m.sandbox.paypal.com/v1/payments/payment/" + p.ID, Rel: "self", Method: "GET"},
			{Href: "https://www.sandbox.paypal.com/cgi-bin/webscr?cmd=_express-checkout&token=EC-60U79048BN7719609", Rel: "approval_url", Method: "REDIRECT"},
		}
		writeJSON(w, http.StatusCreated, p)
	})
	mux.HandleFunc("GET /v1/payments/payment/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.mu.Lock()
		state := f.fetchState
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, paypalPayment{
			ID:    r.PathValue("id"),
			State: state,
			Payer: paypalPayer{PaymentMethod: "paypal", PayerInfo: &paypalPayerInfo{PayerID: "QYR5Z8XDVJNXQ"}},
			Transactions: []paypalTransaction{{
				Amount:        paypalAmount{Currency: "USD", Total: "93.00"},
				InvoiceNumber: "INV-1001",
			}},
		})
	})
	mux.HandleFunc("POST /v1/payments/payment/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var e paypalExecution
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		f.mu.Lock()
		f.executed = append(f.executed, e)
		f.fetchState = "approved"
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, paypalPayment{ID: r.PathValue("id"), State: "approved"})
	})
	return mux
}

func newFakePaypal(t *testing.T) (*fakePaypal, *PaypalGateway) {
	t.Helper()
	fake := &fakePaypal{fetchState: "created"}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(&strings.Builder{})
	gw, err := NewPaypalGateway(PaypalConfig{
		ClientID: "client-id",
		Secret:   "secret",
		Endpoint: srv.URL + "/",
		Logger:   logger,
	})
	require.NoError(t, err)
	return fake, gw
}

func TestNewPaypalGateway_Config(t *testing.T) {
	_, err := NewPaypalGateway(PaypalConfig{})
	assert.Error(t, err)

	_, err = NewPaypalGateway(PaypalConfig{ClientID: "id", Secret: "s", Environment: "staging"})
	assert.Error(t, err)

	endpoint, err := PaypalConfig{Environment: EnvLive}.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://api-m.paypal.com", endpoint)

	endpoint, err = PaypalConfig{}.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://api-m.sandbox.paypal.com", endpoint)
}

func TestPaypalGateway_CreateAndExecute(t *testing.T) {
	fake, gw := newFakePaypal(t)
	c, _ := newTestCheckout(t, gw)

	created, err := c.Create(context.Background(), paypalRequest())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingApproval, created.State)
	assert.Equal(t, "PAY-5YK922393D847794YKER7MUI", created.PaymentID)
	assert.Contains(t, created.ApprovalURL, "token=EC-60U79048BN7719609")

	require.Len(t, fake.created, 1)
	sent := fake.created[0]
	assert.Equal(t, "sale", sent.Intent)
	assert.Equal(t, "paypal", sent.Payer.PaymentMethod)
	require.NotNil(t, sent.RedirectURLs)
	assert.Equal(t, "https://shop.example.com/checkout?successPaypal=1", sent.RedirectURLs.ReturnURL)
	assert.Equal(t, "https://shop.example.com/checkout?errorPaypal=1", sent.RedirectURLs.CancelURL)
	require.Len(t, sent.Transactions, 1)
	tx := sent.Transactions[0]
	assert.Equal(t, paypalAmount{
		Currency: "USD",
		Total:    "93.00",
		Details:  &paypalDetails{Subtotal: "85.00", Tax: "5.00", Shipping: "3.00"},
	}, tx.Amount)
	require.NotNil(t, tx.ItemList)
	assert.Equal(t, paypalItem{Name: "Widget", Quantity: "2", Price: "40.00", Currency: "USD"}, tx.ItemList.Items[0])
	assert.Equal(t, "INV-1001", tx.InvoiceNumber)

	res, err := c.Execute(context.Background(), ExecuteRequest{
		PaymentID:     created.PaymentID,
		PayerID:       "QYR5Z8XDVJNXQ",
		Shipping:      "3.00",
		Tax:           "5.00",
		Subtotal:      "85.00",
		Total:         "93.00",
		InvoiceNumber: "INV-1001",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "QYR5Z8XDVJNXQ", res.Status.PayerID)
	require.Len(t, fake.executed, 1)
	assert.Equal(t, "QYR5Z8XDVJNXQ", fake.executed[0].PayerID)
	assert.Equal(t, "93.00", fake.executed[0].Transactions[0].Amount.Total)

	// 令牌只获取一次，每个写请求都带有幂等头
	assert.Equal(t, 1, fake.tokens)
	assert.Equal(t, []string{"create-INV-1001", "execute-INV-1001", ""}, fake.requestIDs)
}

func TestPaypalGateway_RefreshesExpiredToken(t *testing.T) {
	fake, gw := newFakePaypal(t)
	_, err := gw.FetchIntent(context.Background(), "PAY-1")
	require.NoError(t, err)

	fake.mu.Lock()
	fake.expireOnce = true
	fake.mu.Unlock()

	status, err := gw.FetchIntent(context.Background(), "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, PaymentStateCreated, status.State)
	assert.Equal(t, "93.00", status.Total)
	assert.Equal(t, 2, fake.tokens)
}

func TestPaypalGateway_AuthFailure(t *testing.T) {
	fake, gw := newFakePaypal(t)
	fake.rejectToken = true

	_, err := gw.CreateIntent(context.Background(), PaymentIntent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Equal(t, "invalid_client", err.(*Error).Code)
	assert.Empty(t, fake.created)
}

func TestPaypalGateway_TranslatesErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{http.StatusBadRequest, KindGatewayRejected},
		{http.StatusForbidden, KindAuthFailure},
		{http.StatusTooManyRequests, KindGatewayUnavailable},
		{http.StatusInternalServerError, KindGatewayUnavailable},
	}
	for _, tc := range cases {
		fake, gw := newFakePaypal(t)
		fake.createError = tc.status
		intent, err := NewBuilder(usd).Build(paypalRequest())
		require.NoError(t, err)

		_, err = gw.CreateIntent(context.Background(), intent)
		require.Error(t, err)
		e := err.(*Error)
		assert.Equal(t, tc.kind, e.Kind, "status %d", tc.status)
		assert.Equal(t, "VALIDATION_ERROR", e.Code)
		assert.Equal(t, "dbg-1", e.DebugID)
		assert.Contains(t, e.Message, "transactions[0].amount")
	}
}

func TestPaypalGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	gw, err := NewPaypalGateway(PaypalConfig{ClientID: "id", Secret: "s", Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = gw.FetchIntent(context.Background(), "PAY-1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestPaypalState(t *testing.T) {
	assert.Equal(t, PaymentStateCreated, paypalState("created"))
	assert.Equal(t, PaymentStateApproved, paypalState("approved"))
	assert.Equal(t, PaymentStatePaid, paypalState("COMPLETED"))
	assert.Equal(t, PaymentStateCanceled, paypalState("canceled"))
	assert.Equal(t, PaymentStateTimeout, paypalState("expired"))
	assert.Equal(t, PaymentStateError, paypalState("failed"))
}

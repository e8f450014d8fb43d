package checkout

import (
	"context"
	"sync"
)

// MockGateway implements Gateway for testing
type MockGateway struct {
	mu sync.Mutex

	CreateFunc  func(ctx context.Context, intent PaymentIntent) (*IntentHandle, error)
	FetchFunc   func(ctx context.Context, paymentID string) (*IntentStatus, error)
	ExecuteFunc func(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error)

	CreateCalls  int
	FetchCalls   int
	ExecuteCalls int
	Created      []PaymentIntent        // Captures intents passed to CreateIntent
	Executed     []ExecuteIntentRequest // Captures requests passed to ExecuteIntent
}

func (m *MockGateway) CreateIntent(ctx context.Context, intent PaymentIntent) (*IntentHandle, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.Created = append(m.Created, intent)
	m.mu.Unlock()
	if m.CreateFunc == nil {
		return &IntentHandle{PaymentID: "PAY-1", ApprovalURL: "https://gateway.example.com/approve?token=EC-1", State: PaymentStateCreated}, nil
	}
	return m.CreateFunc(ctx, intent)
}

func (m *MockGateway) FetchIntent(ctx context.Context, paymentID string) (*IntentStatus, error) {
	m.mu.Lock()
	m.FetchCalls++
	m.mu.Unlock()
	if m.FetchFunc == nil {
		return &IntentStatus{PaymentID: paymentID, State: PaymentStateApproved, RawState: "approved"}, nil
	}
	return m.FetchFunc(ctx, paymentID)
}

func (m *MockGateway) ExecuteIntent(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error) {
	m.mu.Lock()
	m.ExecuteCalls++
	m.Executed = append(m.Executed, req)
	m.mu.Unlock()
	if m.ExecuteFunc == nil {
		return &ExecutionResult{PaymentID: req.PaymentID, State: PaymentStateApproved, RawState: "approved"}, nil
	}
	return m.ExecuteFunc(ctx, req)
}

package reconciler

import (
	"context"
	"sync"

	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/iris"
	"github.com/arcstream/cctp-middleware/pkg/receipt"
)

type mockStore struct {
	listStreamerIDsFn  func(ctx context.Context) ([]string, error)
	listNonTerminalFn  func(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error)
	transitionStatusFn func(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error)

	mu          sync.Mutex
	transitions []transitionCall
}

type transitionCall struct {
	id            string
	status        donation.Status
	forwardTxHash string
}

func (m *mockStore) ListStreamerIDs(ctx context.Context) ([]string, error) {
	if m.listStreamerIDsFn != nil {
		return m.listStreamerIDsFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) ListNonTerminal(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error) {
	if m.listNonTerminalFn != nil {
		return m.listNonTerminalFn(ctx, streamerID, limit)
	}
	return nil, nil
}

func (m *mockStore) TransitionStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error) {
	m.mu.Lock()
	m.transitions = append(m.transitions, transitionCall{id: id, status: status, forwardTxHash: forwardTxHash})
	m.mu.Unlock()
	if m.transitionStatusFn != nil {
		return m.transitionStatusFn(ctx, id, status, forwardTxHash)
	}
	return true, nil
}

func (m *mockStore) transitionCalls() []transitionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transitionCall(nil), m.transitions...)
}

type mockReceiptChecker struct {
	checkFn func(ctx context.Context, rpcURL, txHash string) receipt.Status

	mu    sync.Mutex
	calls int
}

func (m *mockReceiptChecker) Check(ctx context.Context, rpcURL, txHash string) receipt.Status {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.checkFn != nil {
		return m.checkFn(ctx, rpcURL, txHash)
	}
	return receipt.StatusPending
}

func (m *mockReceiptChecker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAttestationClient struct {
	getMessageStatusFn func(ctx context.Context, sourceDomain uint32, txHash string) (*iris.Message, error)

	mu    sync.Mutex
	calls int
}

func (m *mockAttestationClient) GetMessageStatus(ctx context.Context, sourceDomain uint32, txHash string) (*iris.Message, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.getMessageStatusFn != nil {
		return m.getMessageStatusFn(ctx, sourceDomain, txHash)
	}
	return nil, nil
}

func (m *mockAttestationClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAlertSink struct {
	mu     sync.Mutex
	events []donation.AlertEvent
}

func (m *mockAlertSink) Publish(streamerID string, event donation.AlertEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockAlertSink) published() []donation.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]donation.AlertEvent(nil), m.events...)
}

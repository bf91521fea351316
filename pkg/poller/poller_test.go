package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/pkg/chains"
	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/iris"
	"github.com/arcstream/cctp-middleware/pkg/receipt"
)

type memoryStore struct {
	mu        sync.Mutex
	donations map[string]*donation.Donation
}

func newMemoryStore(records ...*donation.Donation) *memoryStore {
	s := &memoryStore{donations: make(map[string]*donation.Donation)}
	for _, d := range records {
		s.donations[d.ID] = d
	}
	return s
}

func (s *memoryStore) GetDonation(ctx context.Context, id string) (*donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *s.donations[id]
	return &d, nil
}

func (s *memoryStore) TransitionStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.donations[id]
	if d.Status.IsTerminal() {
		return false, nil
	}
	d.Status = status
	if forwardTxHash != "" {
		d.ForwardTxHash = forwardTxHash
	}
	return true, nil
}

func (s *memoryStore) status(id string) donation.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.donations[id].Status
}

type stubReceipts struct {
	status receipt.Status
}

func (s *stubReceipts) Check(ctx context.Context, rpcURL, txHash string) receipt.Status {
	return s.status
}

type stubAttestation struct {
	mu  sync.Mutex
	msg *iris.Message
}

func (s *stubAttestation) GetMessageStatus(ctx context.Context, sourceDomain uint32, txHash string) (*iris.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msg, nil
}

func (s *stubAttestation) set(msg *iris.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = msg
}

type collectingSink struct {
	mu     sync.Mutex
	events []donation.AlertEvent
}

func (c *collectingSink) Publish(streamerID string, event donation.AlertEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collectingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func pendingDonation(id string) *donation.Donation {
	return &donation.Donation{
		ID:           id,
		StreamerID:   "streamer-1",
		DonorAddress: "0x1111111111111111111111111111111111111111",
		Amount:       decimal.RequireFromString("2"),
		SourceChain:  "base-sepolia",
		SourceTxHash: "0xburn" + id,
		Status:       donation.StatusPending,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPollerCompletesDonation(t *testing.T) {
	store := newMemoryStore(pendingDonation("d1"))
	attest := &stubAttestation{msg: &iris.Message{Status: iris.MessageStatusComplete, ForwardTxHash: "0xmint"}}
	sink := &collectingSink{}

	p := New(store, &stubReceipts{status: receipt.StatusSuccess}, attest, sink, chains.Default(), 10*time.Millisecond, 100, zap.NewNop())
	defer p.Stop()

	p.Watch("d1")

	waitFor(t, 2*time.Second, func() bool {
		return store.status("d1") == donation.StatusCompleted
	})
	waitFor(t, time.Second, func() bool { return sink.count() == 1 })
}

func TestPollerFailsRevertedBurn(t *testing.T) {
	store := newMemoryStore(pendingDonation("d1"))
	sink := &collectingSink{}

	p := New(store, &stubReceipts{status: receipt.StatusReverted}, &stubAttestation{}, sink, chains.Default(), 10*time.Millisecond, 100, zap.NewNop())
	defer p.Stop()

	p.Watch("d1")

	waitFor(t, 2*time.Second, func() bool {
		return store.status("d1") == donation.StatusFailed
	})
	if sink.count() != 0 {
		t.Fatalf("expected no alerts for a failed donation")
	}
}

func TestPollerExhaustionParksAsForwarding(t *testing.T) {
	store := newMemoryStore(pendingDonation("d1"))

	p := New(store, &stubReceipts{status: receipt.StatusPending}, &stubAttestation{}, &collectingSink{}, chains.Default(), 5*time.Millisecond, 3, zap.NewNop())

	p.Watch("d1")
	p.wg.Wait()

	if got := store.status("d1"); got != donation.StatusForwarding {
		t.Fatalf("expected FORWARDING after exhaustion, got %s", got)
	}
	p.Stop()
}

func TestPollerStopLeavesRecordForSweeper(t *testing.T) {
	store := newMemoryStore(pendingDonation("d1"))

	p := New(store, &stubReceipts{status: receipt.StatusPending}, &stubAttestation{}, &collectingSink{}, chains.Default(), time.Hour, 100, zap.NewNop())

	p.Watch("d1")
	p.Stop()

	if got := store.status("d1"); got != donation.StatusPending {
		t.Fatalf("expected record untouched after stop, got %s", got)
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/donationstore"
	"github.com/arcstream/cctp-middleware/pkg/iris"
)

type mockStore struct {
	createDonationFn   func(ctx context.Context, d *donation.Donation) error
	getDonationFn      func(ctx context.Context, id string) (*donation.Donation, error)
	updateDonationFn   func(ctx context.Context, d *donation.Donation) error
	transitionStatusFn func(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error)
	listDonationsFn    func(ctx context.Context, opts ...donationstore.QueryOption) ([]*donation.Donation, error)
	countDonationsFn   func(ctx context.Context, opts ...donationstore.QueryOption) (int, error)
	listNonTerminalFn  func(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error)
	latestCompletedFn  func(ctx context.Context, streamerID string, after *time.Time) (*donation.Donation, error)
	getStreamerFn      func(ctx context.Context, id string) (*donation.Streamer, error)
	listStreamerIDsFn  func(ctx context.Context) ([]string, error)

	mu      sync.Mutex
	created []*donation.Donation
}

func (m *mockStore) CreateDonation(ctx context.Context, d *donation.Donation) error {
	m.mu.Lock()
	m.created = append(m.created, d)
	m.mu.Unlock()
	if m.createDonationFn != nil {
		return m.createDonationFn(ctx, d)
	}
	return nil
}

func (m *mockStore) GetDonation(ctx context.Context, id string) (*donation.Donation, error) {
	if m.getDonationFn != nil {
		return m.getDonationFn(ctx, id)
	}
	return nil, donationstore.ErrNotFound
}

func (m *mockStore) UpdateDonation(ctx context.Context, d *donation.Donation) error {
	if m.updateDonationFn != nil {
		return m.updateDonationFn(ctx, d)
	}
	return nil
}

func (m *mockStore) TransitionStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error) {
	if m.transitionStatusFn != nil {
		return m.transitionStatusFn(ctx, id, status, forwardTxHash)
	}
	return true, nil
}

func (m *mockStore) ListDonations(ctx context.Context, opts ...donationstore.QueryOption) ([]*donation.Donation, error) {
	if m.listDonationsFn != nil {
		return m.listDonationsFn(ctx, opts...)
	}
	return nil, nil
}

func (m *mockStore) CountDonations(ctx context.Context, opts ...donationstore.QueryOption) (int, error) {
	if m.countDonationsFn != nil {
		return m.countDonationsFn(ctx, opts...)
	}
	return 0, nil
}

func (m *mockStore) ListNonTerminal(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error) {
	if m.listNonTerminalFn != nil {
		return m.listNonTerminalFn(ctx, streamerID, limit)
	}
	return nil, nil
}

func (m *mockStore) LatestCompleted(ctx context.Context, streamerID string, after *time.Time) (*donation.Donation, error) {
	if m.latestCompletedFn != nil {
		return m.latestCompletedFn(ctx, streamerID, after)
	}
	return nil, donationstore.ErrNotFound
}

func (m *mockStore) GetStreamer(ctx context.Context, id string) (*donation.Streamer, error) {
	if m.getStreamerFn != nil {
		return m.getStreamerFn(ctx, id)
	}
	return nil, donationstore.ErrNotFound
}

func (m *mockStore) ListStreamerIDs(ctx context.Context) ([]string, error) {
	if m.listStreamerIDsFn != nil {
		return m.listStreamerIDsFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) createdDonations() []*donation.Donation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*donation.Donation(nil), m.created...)
}

type mockWatcher struct {
	mu      sync.Mutex
	watched []string
}

func (m *mockWatcher) Watch(donationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched = append(m.watched, donationID)
}

func (m *mockWatcher) watchedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.watched...)
}

type mockSweeper struct {
	sweepStreamerFn func(ctx context.Context, streamerID string) (int, error)
}

func (m *mockSweeper) SweepStreamer(ctx context.Context, streamerID string) (int, error) {
	if m.sweepStreamerFn != nil {
		return m.sweepStreamerFn(ctx, streamerID)
	}
	return 0, nil
}

type mockFeeQuoter struct {
	getFeeQuoteFn func(ctx context.Context, sourceDomain, destDomain uint32) (*iris.FeeQuote, error)
}

func (m *mockFeeQuoter) GetFeeQuote(ctx context.Context, sourceDomain, destDomain uint32) (*iris.FeeQuote, error) {
	if m.getFeeQuoteFn != nil {
		return m.getFeeQuoteFn(ctx, sourceDomain, destDomain)
	}
	return &iris.FeeQuote{Fee: 1000}, nil
}

type mockNameResolver struct {
	name string
}

func (m *mockNameResolver) ReverseLookup(ctx context.Context, address string) string {
	return m.name
}

type mockAlertSink struct {
	mu        sync.Mutex
	published []donation.AlertEvent
}

func (m *mockAlertSink) Publish(streamerID string, event donation.AlertEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
}

func (m *mockAlertSink) events() []donation.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]donation.AlertEvent(nil), m.published...)
}

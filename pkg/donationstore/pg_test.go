package donationstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/pgutil"
	mghelper "github.com/arcstream/cctp-middleware/pkg/pgutil/migrations"
)

func setupStore(t *testing.T) (context.Context, *pgStore) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &StreamerDao{}, &DonationDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	if err := mghelper.CreateModelUniqueIndexes(ctx, db, &DonationDao{}, "source_tx_hash"); err != nil {
		t.Fatalf("failed to create indexes: %v", err)
	}

	return ctx, NewStore(db)
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed donationstore tests")
}

func newTestDonation(streamerID, txHash string) *donation.Donation {
	return &donation.Donation{
		ID:           uuid.NewString(),
		StreamerID:   streamerID,
		DonorAddress: "0x1111111111111111111111111111111111111111",
		DonorName:    "alice",
		Amount:       decimal.RequireFromString("5.5"),
		Message:      "keep it up",
		SourceChain:  "base-sepolia",
		SourceTxHash: txHash,
		Status:       donation.StatusPending,
	}
}

func insertStreamer(ctx context.Context, t *testing.T, s *pgStore, id string) {
	t.Helper()
	dao := &StreamerDao{
		ID:            id,
		WalletAddress: "0x2222222222222222222222222222222222222222",
		DisplayName:   "test streamer",
	}
	if _, err := s.db.NewInsert().Model(dao).Exec(ctx); err != nil {
		t.Fatalf("failed to insert streamer: %v", err)
	}
}

func TestDonationPGStore_CreateAndGet(t *testing.T) {
	ctx, s := setupStore(t)

	d := newTestDonation("streamer-1", "0xaaa1")
	if err := s.CreateDonation(ctx, d); err != nil {
		t.Fatalf("CreateDonation() failed: %v", err)
	}

	got, err := s.GetDonation(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDonation() failed: %v", err)
	}
	if got.SourceTxHash != d.SourceTxHash {
		t.Fatalf("expected tx hash %s, got %s", d.SourceTxHash, got.SourceTxHash)
	}
	if got.Status != donation.StatusPending {
		t.Fatalf("expected status PENDING, got %s", got.Status)
	}
	if !got.Amount.Equal(d.Amount) {
		t.Fatalf("expected amount %s, got %s", d.Amount, got.Amount)
	}

	if _, err := s.GetDonation(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDonationPGStore_DuplicateTxHash(t *testing.T) {
	ctx, s := setupStore(t)

	d := newTestDonation("streamer-1", "0xaaa2")
	if err := s.CreateDonation(ctx, d); err != nil {
		t.Fatalf("CreateDonation() failed: %v", err)
	}

	dup := newTestDonation("streamer-2", "0xaaa2")
	if err := s.CreateDonation(ctx, dup); !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("expected ErrDuplicateTx, got %v", err)
	}
}

func TestDonationPGStore_TransitionStatus(t *testing.T) {
	ctx, s := setupStore(t)

	d := newTestDonation("streamer-1", "0xaaa3")
	if err := s.CreateDonation(ctx, d); err != nil {
		t.Fatalf("CreateDonation() failed: %v", err)
	}

	updated, err := s.TransitionStatus(ctx, d.ID, donation.StatusForwarding, "")
	if err != nil {
		t.Fatalf("TransitionStatus() failed: %v", err)
	}
	if !updated {
		t.Fatalf("expected transition to apply")
	}

	updated, err = s.TransitionStatus(ctx, d.ID, donation.StatusCompleted, "0xmint")
	if err != nil {
		t.Fatalf("TransitionStatus() failed: %v", err)
	}
	if !updated {
		t.Fatalf("expected completion to apply")
	}

	got, err := s.GetDonation(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDonation() failed: %v", err)
	}
	if got.Status != donation.StatusCompleted {
		t.Fatalf("expected status COMPLETED, got %s", got.Status)
	}
	if got.ForwardTxHash != "0xmint" {
		t.Fatalf("expected forward tx hash to be set, got %q", got.ForwardTxHash)
	}

	// Terminal records are frozen: a second transition changes nothing.
	updated, err = s.TransitionStatus(ctx, d.ID, donation.StatusFailed, "")
	if err != nil {
		t.Fatalf("TransitionStatus() failed: %v", err)
	}
	if updated {
		t.Fatalf("expected terminal record to be immutable")
	}

	got, err = s.GetDonation(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDonation() failed: %v", err)
	}
	if got.Status != donation.StatusCompleted {
		t.Fatalf("expected status to stay COMPLETED, got %s", got.Status)
	}
}

func TestDonationPGStore_ListNonTerminal(t *testing.T) {
	ctx, s := setupStore(t)

	for i := 0; i < 5; i++ {
		d := newTestDonation("streamer-1", fmt.Sprintf("0xbb%d", i))
		d.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.CreateDonation(ctx, d); err != nil {
			t.Fatalf("CreateDonation() failed: %v", err)
		}
		if i == 0 {
			if _, err := s.TransitionStatus(ctx, d.ID, donation.StatusCompleted, "0xmint"); err != nil {
				t.Fatalf("TransitionStatus() failed: %v", err)
			}
		}
	}

	other := newTestDonation("streamer-2", "0xcc0")
	if err := s.CreateDonation(ctx, other); err != nil {
		t.Fatalf("CreateDonation() failed: %v", err)
	}

	got, err := s.ListNonTerminal(ctx, "streamer-1", 3)
	if err != nil {
		t.Fatalf("ListNonTerminal() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 donations, got %d", len(got))
	}
	for _, d := range got {
		if d.Status.IsTerminal() {
			t.Fatalf("expected only non-terminal donations, got %s", d.Status)
		}
		if d.StreamerID != "streamer-1" {
			t.Fatalf("expected streamer-1 donations only, got %s", d.StreamerID)
		}
	}
	// Newest first.
	if got[0].SourceTxHash != "0xbb4" {
		t.Fatalf("expected newest donation first, got %s", got[0].SourceTxHash)
	}
}

func TestDonationPGStore_ListDonationsPagination(t *testing.T) {
	ctx, s := setupStore(t)

	for i := 0; i < 4; i++ {
		d := newTestDonation("streamer-1", fmt.Sprintf("0xdd%d", i))
		d.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.CreateDonation(ctx, d); err != nil {
			t.Fatalf("CreateDonation() failed: %v", err)
		}
	}

	page, err := s.ListDonations(ctx,
		WithStreamerID("streamer-1"),
		WithPagination(2, 1),
	)
	if err != nil {
		t.Fatalf("ListDonations() failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 donations, got %d", len(page))
	}
	if page[0].SourceTxHash != "0xdd2" {
		t.Fatalf("expected second-newest donation first, got %s", page[0].SourceTxHash)
	}

	total, err := s.CountDonations(ctx, WithStreamerID("streamer-1"))
	if err != nil {
		t.Fatalf("CountDonations() failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected total 4, got %d", total)
	}
}

func TestDonationPGStore_LatestCompleted(t *testing.T) {
	ctx, s := setupStore(t)

	if _, err := s.LatestCompleted(ctx, "streamer-1", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := newTestDonation("streamer-1", "0xee0")
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := newTestDonation("streamer-1", "0xee1")
	second.CreatedAt = time.Now()
	for _, d := range []*donation.Donation{first, second} {
		if err := s.CreateDonation(ctx, d); err != nil {
			t.Fatalf("CreateDonation() failed: %v", err)
		}
	}

	// Complete them out of creation order; the newest-created one still
	// wins, creation time is the catch-up cursor.
	if _, err := s.TransitionStatus(ctx, second.ID, donation.StatusCompleted, "0xm1"); err != nil {
		t.Fatalf("TransitionStatus() failed: %v", err)
	}
	if _, err := s.TransitionStatus(ctx, first.ID, donation.StatusCompleted, "0xm0"); err != nil {
		t.Fatalf("TransitionStatus() failed: %v", err)
	}

	got, err := s.LatestCompleted(ctx, "streamer-1", nil)
	if err != nil {
		t.Fatalf("LatestCompleted() failed: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected latest completed %s, got %s", second.ID, got.ID)
	}

	// An after bound newer than every donation finds nothing.
	future := time.Now().Add(time.Hour)
	if _, err := s.LatestCompleted(ctx, "streamer-1", &future); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with future bound, got %v", err)
	}
}

func TestDonationPGStore_Streamers(t *testing.T) {
	ctx, s := setupStore(t)

	insertStreamer(ctx, t, s, "streamer-b")
	insertStreamer(ctx, t, s, "streamer-a")

	got, err := s.GetStreamer(ctx, "streamer-a")
	if err != nil {
		t.Fatalf("GetStreamer() failed: %v", err)
	}
	if got.DisplayName != "test streamer" {
		t.Fatalf("unexpected display name %q", got.DisplayName)
	}

	if _, err := s.GetStreamer(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ids, err := s.ListStreamerIDs(ctx)
	if err != nil {
		t.Fatalf("ListStreamerIDs() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "streamer-a" || ids[1] != "streamer-b" {
		t.Fatalf("unexpected streamer ids: %v", ids)
	}
}

// Package donationstore persists donation settlement records and streamer
// profiles in PostgreSQL.
package donationstore

import (
	"context"
	"errors"
	"time"

	"github.com/arcstream/cctp-middleware/pkg/donation"
)

// ErrNotFound is returned when a donation or streamer lookup finds no
// matching record.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateTx is returned when a donation with the same source
// transaction hash already exists.
var ErrDuplicateTx = errors.New("donation already recorded for transaction")

// Store defines the persistence operations for donation settlement records.
type Store interface {
	CreateDonation(ctx context.Context, d *donation.Donation) error
	GetDonation(ctx context.Context, id string) (*donation.Donation, error)
	UpdateDonation(ctx context.Context, d *donation.Donation) error

	// TransitionStatus moves a donation to the given status, setting the
	// forward transaction hash when non-empty. The update only applies if
	// the record is currently in a non-terminal status; the returned bool
	// reports whether a row actually changed, which callers use to emit
	// completion alerts exactly once.
	TransitionStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error)

	ListDonations(ctx context.Context, opts ...QueryOption) ([]*donation.Donation, error)

	// CountDonations returns the number of donations matching the given
	// filters. Pagination options are ignored.
	CountDonations(ctx context.Context, opts ...QueryOption) (int, error)

	// ListNonTerminal returns the newest non-terminal donations for one
	// streamer, capped at limit.
	ListNonTerminal(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error)

	// LatestCompleted returns the completed donation with the newest
	// creation time for one streamer. A non-nil after restricts the
	// search to donations created after that instant, which overlays use
	// to catch up after a dropped stream.
	LatestCompleted(ctx context.Context, streamerID string, after *time.Time) (*donation.Donation, error)

	GetStreamer(ctx context.Context, id string) (*donation.Streamer, error)
	ListStreamerIDs(ctx context.Context) ([]string, error)
}

// QueryOptions defines filters and pagination for donation listings.
type QueryOptions struct {
	StreamerID *string
	Status     *donation.Status
	Limit      int
	Offset     int
}

// QueryOption is a functional option for donation listings.
type QueryOption func(*QueryOptions)

// WithStreamerID filters donations to one streamer.
func WithStreamerID(streamerID string) QueryOption {
	return func(opts *QueryOptions) {
		opts.StreamerID = &streamerID
	}
}

// WithStatus filters donations by settlement status.
func WithStatus(status donation.Status) QueryOption {
	return func(opts *QueryOptions) {
		opts.Status = &status
	}
}

// WithPagination sets the page window for a listing.
func WithPagination(limit, offset int) QueryOption {
	return func(opts *QueryOptions) {
		opts.Limit = limit
		opts.Offset = offset
	}
}

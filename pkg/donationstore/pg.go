package donationstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/arcstream/cctp-middleware/pkg/donation"
)

const uniqueViolation = "23505"

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the donation store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

func (s *pgStore) CreateDonation(ctx context.Context, d *donation.Donation) error {
	dao := toDonationDao(d)

	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTx
		}
		return fmt.Errorf("failed to create donation: %w", err)
	}

	return nil
}

func (s *pgStore) GetDonation(ctx context.Context, id string) (*donation.Donation, error) {
	dao := new(DonationDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("d.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}

	return toDonation(dao), nil
}

func (s *pgStore) UpdateDonation(ctx context.Context, d *donation.Donation) error {
	dao := toDonationDao(d)
	dao.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().
		Model(dao).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update donation: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) TransitionStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error) {
	q := s.db.NewUpdate().
		Model((*DonationDao)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status NOT IN (?, ?)", string(donation.StatusCompleted), string(donation.StatusFailed))

	if forwardTxHash != "" {
		q = q.Set("forward_tx_hash = ?", forwardTxHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to transition donation status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return rows > 0, nil
}

func (s *pgStore) ListDonations(ctx context.Context, opts ...QueryOption) ([]*donation.Donation, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var daos []DonationDao
	query := s.db.NewSelect().
		Model(&daos).
		Order("created_at DESC")

	if options.StreamerID != nil {
		query = query.Where("streamer_id = ?", *options.StreamerID)
	}
	if options.Status != nil {
		query = query.Where("status = ?", string(*options.Status))
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}

	donations := make([]*donation.Donation, len(daos))
	for i := range daos {
		donations[i] = toDonation(&daos[i])
	}
	return donations, nil
}

func (s *pgStore) CountDonations(ctx context.Context, opts ...QueryOption) (int, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	query := s.db.NewSelect().Model((*DonationDao)(nil))
	if options.StreamerID != nil {
		query = query.Where("streamer_id = ?", *options.StreamerID)
	}
	if options.Status != nil {
		query = query.Where("status = ?", string(*options.Status))
	}

	count, err := query.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count donations: %w", err)
	}
	return count, nil
}

func (s *pgStore) ListNonTerminal(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error) {
	var daos []DonationDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("streamer_id = ?", streamerID).
		Where("status NOT IN (?, ?)", string(donation.StatusCompleted), string(donation.StatusFailed)).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal donations: %w", err)
	}

	donations := make([]*donation.Donation, len(daos))
	for i := range daos {
		donations[i] = toDonation(&daos[i])
	}
	return donations, nil
}

func (s *pgStore) LatestCompleted(ctx context.Context, streamerID string, after *time.Time) (*donation.Donation, error) {
	dao := new(DonationDao)
	query := s.db.NewSelect().
		Model(dao).
		Where("streamer_id = ?", streamerID).
		Where("status = ?", string(donation.StatusCompleted)).
		Order("created_at DESC").
		Limit(1)
	if after != nil {
		query = query.Where("created_at > ?", after.UTC())
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest completed donation: %w", err)
	}

	return toDonation(dao), nil
}

func (s *pgStore) GetStreamer(ctx context.Context, id string) (*donation.Streamer, error) {
	dao := new(StreamerDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("s.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get streamer: %w", err)
	}

	return toStreamer(dao), nil
}

func (s *pgStore) ListStreamerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*StreamerDao)(nil)).
		Column("id").
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list streamers: %w", err)
	}
	return ids, nil
}

package donationstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/arcstream/cctp-middleware/pkg/donation"
)

// DonationDao is a data access object that maps directly to the 'donations' table in PostgreSQL.
type DonationDao struct {
	bun.BaseModel `bun:"table:donations,alias:d"`
	ID            string          `bun:"id,pk,type:uuid"`
	StreamerID    string          `bun:"streamer_id,notnull,type:varchar(64)"`
	DonorAddress  string          `bun:"donor_address,notnull,type:varchar(42)"`
	DonorName     *string         `bun:"donor_name,type:varchar(64)"`
	Amount        decimal.Decimal `bun:"amount,notnull,type:numeric(38,18)"`
	Message       *string         `bun:"message,type:varchar(200)"`
	SourceChain   string          `bun:"source_chain,notnull,type:varchar(64)"`
	SourceTxHash  string          `bun:"source_tx_hash,unique,notnull,type:varchar(66)"`
	ForwardTxHash *string         `bun:"forward_tx_hash,type:varchar(66)"`
	Status        string          `bun:"status,notnull,type:varchar(16)"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,default:current_timestamp"`
}

// toDonationDao converts a donation.Donation to DonationDao.
func toDonationDao(d *donation.Donation) *DonationDao {
	dao := &DonationDao{
		ID:           d.ID,
		StreamerID:   d.StreamerID,
		DonorAddress: d.DonorAddress,
		Amount:       d.Amount,
		SourceChain:  d.SourceChain,
		SourceTxHash: d.SourceTxHash,
		Status:       string(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}

	if d.DonorName != "" {
		dao.DonorName = &d.DonorName
	}
	if d.Message != "" {
		dao.Message = &d.Message
	}
	if d.ForwardTxHash != "" {
		dao.ForwardTxHash = &d.ForwardTxHash
	}

	return dao
}

// toDonation converts a DonationDao to donation.Donation.
func toDonation(dao *DonationDao) *donation.Donation {
	d := &donation.Donation{
		ID:           dao.ID,
		StreamerID:   dao.StreamerID,
		DonorAddress: dao.DonorAddress,
		Amount:       dao.Amount,
		SourceChain:  dao.SourceChain,
		SourceTxHash: dao.SourceTxHash,
		Status:       donation.Status(dao.Status),
		CreatedAt:    dao.CreatedAt,
		UpdatedAt:    dao.UpdatedAt,
	}

	if dao.DonorName != nil {
		d.DonorName = *dao.DonorName
	}
	if dao.Message != nil {
		d.Message = *dao.Message
	}
	if dao.ForwardTxHash != nil {
		d.ForwardTxHash = *dao.ForwardTxHash
	}

	return d
}

// StreamerDao is a data access object that maps directly to the 'streamers' table in PostgreSQL.
type StreamerDao struct {
	bun.BaseModel `bun:"table:streamers,alias:s"`
	ID            string           `bun:"id,pk,type:varchar(64)"`
	WalletAddress string           `bun:"wallet_address,notnull,type:varchar(42)"`
	DisplayName   string           `bun:"display_name,notnull,type:varchar(64)"`
	MinDonation   *decimal.Decimal `bun:"min_donation,nullzero,type:numeric(38,18)"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,default:current_timestamp"`
}

// toStreamer converts a StreamerDao to donation.Streamer.
func toStreamer(dao *StreamerDao) *donation.Streamer {
	s := &donation.Streamer{
		ID:            dao.ID,
		WalletAddress: dao.WalletAddress,
		DisplayName:   dao.DisplayName,
		CreatedAt:     dao.CreatedAt,
	}
	if dao.MinDonation != nil {
		s.MinDonation = *dao.MinDonation
	}
	return s
}

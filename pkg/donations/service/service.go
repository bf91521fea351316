// Package service implements the donation API: record creation, status
// updates, listings, fee quotes and the manual refresh path.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/internal/metrics"
	apperrors "github.com/arcstream/cctp-middleware/pkg/app/errors"
	"github.com/arcstream/cctp-middleware/pkg/chains"
	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/donationstore"
	"github.com/arcstream/cctp-middleware/pkg/iris"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Watcher starts per-transaction settlement tracking for a new donation.
type Watcher interface {
	Watch(donationID string)
}

// Sweeper reconciles one streamer's open donations on demand.
type Sweeper interface {
	SweepStreamer(ctx context.Context, streamerID string) (int, error)
}

// FeeQuoter fetches forwarding fee quotes from the attestation service.
type FeeQuoter interface {
	GetFeeQuote(ctx context.Context, sourceDomain, destDomain uint32) (*iris.FeeQuote, error)
}

// NameResolver resolves donor addresses to display names, best-effort.
type NameResolver interface {
	ReverseLookup(ctx context.Context, address string) string
}

// AlertSink receives completion alerts for fan-out to overlay clients.
type AlertSink interface {
	Publish(streamerID string, event donation.AlertEvent)
}

// Service is the donation application service.
type Service struct {
	store    donationstore.Store
	registry *chains.Registry
	fees     FeeQuoter
	watcher  Watcher
	sweeper  Sweeper
	names    NameResolver
	alerts   AlertSink
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates the donation service.
func New(store donationstore.Store, registry *chains.Registry, fees FeeQuoter, watcher Watcher, sweeper Sweeper, names NameResolver, alerts AlertSink, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		fees:     fees,
		watcher:  watcher,
		sweeper:  sweeper,
		names:    names,
		alerts:   alerts,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateDonationRequest is the POST /donations payload.
type CreateDonationRequest struct {
	StreamerID   string `json:"streamerId" validate:"required"`
	DonorAddress string `json:"donorAddress" validate:"required,eth_addr"`
	DonorName    string `json:"donorName" validate:"max=64"`
	Amount       string `json:"amount" validate:"required"`
	Message      string `json:"message"`
	SourceChain  string `json:"sourceChain" validate:"required"`
	SourceTxHash string `json:"sourceTxHash" validate:"required"`
}

// CreateDonation validates and records a donation, then starts tracking its
// settlement.
func (s *Service) CreateDonation(ctx context.Context, req *CreateDonationRequest) (*donation.Donation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequestError(err, "invalid donation request")
	}
	if !txHashPattern.MatchString(req.SourceTxHash) {
		return nil, apperrors.BadRequestError(nil, "invalid source transaction hash")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, apperrors.BadRequestError(err, "amount must be a positive decimal")
	}

	if _, ok := s.registry.ByName(req.SourceChain); !ok {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unsupported source chain %q", req.SourceChain))
	}

	streamer, err := s.store.GetStreamer(ctx, req.StreamerID)
	if err != nil {
		if errors.Is(err, donationstore.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "streamer not found")
		}
		return nil, apperrors.GeneralError(err)
	}
	if !streamer.MinDonation.IsZero() && amount.LessThan(streamer.MinDonation) {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("donation below streamer minimum of %s USDC", streamer.MinDonation))
	}

	donorName := req.DonorName
	if donorName == "" && s.names != nil {
		donorName = s.names.ReverseLookup(ctx, req.DonorAddress)
	}

	now := time.Now().UTC()
	d := &donation.Donation{
		ID:           uuid.NewString(),
		StreamerID:   req.StreamerID,
		DonorAddress: req.DonorAddress,
		DonorName:    donorName,
		Amount:       amount,
		Message:      donation.TruncateMessage(req.Message),
		SourceChain:  req.SourceChain,
		SourceTxHash: req.SourceTxHash,
		Status:       donation.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateDonation(ctx, d); err != nil {
		if errors.Is(err, donationstore.ErrDuplicateTx) {
			return nil, apperrors.ConflictError(err, "donation already recorded for this transaction")
		}
		return nil, apperrors.GeneralError(err)
	}

	metrics.DonationsCreated.WithLabelValues(d.SourceChain).Inc()
	s.logger.Info("Donation recorded",
		zap.String("donation_id", d.ID),
		zap.String("streamer_id", d.StreamerID),
		zap.String("source_chain", d.SourceChain),
		zap.String("amount", d.Amount.String()))

	s.watcher.Watch(d.ID)
	return d, nil
}

// GetDonation returns one donation by ID.
func (s *Service) GetDonation(ctx context.Context, id string) (*donation.Donation, error) {
	d, err := s.store.GetDonation(ctx, id)
	if err != nil {
		if errors.Is(err, donationstore.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "donation not found")
		}
		return nil, apperrors.GeneralError(err)
	}
	return d, nil
}

// UpdateStatus applies a driver-requested status transition, carrying the
// forwarded mint hash when the driver saw one. Terminal records never
// change; the frontend also uses this to fail a donation whose burn the
// donor abandoned.
func (s *Service) UpdateStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (*donation.Donation, error) {
	if !status.Valid() {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown status %q", status))
	}
	if status == donation.StatusCompleted && forwardTxHash == "" {
		return nil, apperrors.BadRequestError(nil, "completing a donation requires forwardTxHash")
	}

	if _, err := s.store.GetDonation(ctx, id); err != nil {
		if errors.Is(err, donationstore.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "donation not found")
		}
		return nil, apperrors.GeneralError(err)
	}

	applied, err := s.store.TransitionStatus(ctx, id, status, forwardTxHash)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	d, err := s.GetDonation(ctx, id)
	if err != nil {
		return nil, err
	}

	if applied {
		metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
		if status == donation.StatusCompleted && s.alerts != nil {
			alerted := *d
			if alerted.DonorName == "" && s.names != nil {
				alerted.DonorName = s.names.ReverseLookup(ctx, alerted.DonorAddress)
				if alerted.DonorName != "" {
					// Keep the resolved name so history and
					// catch-up reads show it too.
					if err := s.store.UpdateDonation(ctx, &alerted); err != nil {
						s.logger.Warn("Failed to persist resolved donor name",
							zap.String("donation_id", alerted.ID),
							zap.Error(err))
					}
				}
			}
			s.alerts.Publish(alerted.StreamerID, donation.AlertFor(&alerted))
		}
	}

	return d, nil
}

// BurnParams returns everything a donor client needs to build the burn call
// for one streamer on one source chain: the TokenMessengerV2 contract, the
// USDC token, the streamer's wallet padded to the 32-byte mintRecipient form,
// and the forwarding hook payload.
type BurnParams struct {
	SourceChain      string `json:"sourceChain"`
	Domain           uint32 `json:"domain"`
	TokenMessengerV2 string `json:"tokenMessengerV2"`
	USDC             string `json:"usdc"`
	MintRecipient    string `json:"mintRecipient"`
	HookData         string `json:"hookData"`
}

// BurnParamsFor resolves the burn call parameters for a streamer and chain.
func (s *Service) BurnParamsFor(ctx context.Context, streamerID, sourceChain string) (*BurnParams, error) {
	chain, ok := s.registry.ByName(sourceChain)
	if !ok {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unsupported source chain %q", sourceChain))
	}

	streamer, err := s.store.GetStreamer(ctx, streamerID)
	if err != nil {
		if errors.Is(err, donationstore.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "streamer not found")
		}
		return nil, apperrors.GeneralError(err)
	}

	return &BurnParams{
		SourceChain:      chain.Name,
		Domain:           chain.Domain,
		TokenMessengerV2: chain.TokenMessengerV2,
		USDC:             chain.USDC,
		MintRecipient:    chains.PadAddress(streamer.WalletAddress),
		HookData:         chains.ForwardingHookData,
	}, nil
}

// ListDonations returns one page of donations, newest first, along with the
// total number of matching records. page is 1-based.
func (s *Service) ListDonations(ctx context.Context, streamerID string, status donation.Status, page, limit int) ([]*donation.Donation, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperrors.BadRequestError(nil, fmt.Sprintf("unknown status %q", status))
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var filters []donationstore.QueryOption
	if streamerID != "" {
		filters = append(filters, donationstore.WithStreamerID(streamerID))
	}
	if status != "" {
		filters = append(filters, donationstore.WithStatus(status))
	}

	total, err := s.store.CountDonations(ctx, filters...)
	if err != nil {
		return nil, 0, apperrors.GeneralError(err)
	}

	opts := append(filters, donationstore.WithPagination(limit, (page-1)*limit))
	records, err := s.store.ListDonations(ctx, opts...)
	if err != nil {
		return nil, 0, apperrors.GeneralError(err)
	}
	return records, total, nil
}

// Refresh reconciles the caller's open donations immediately and returns the
// number of records that changed.
func (s *Service) Refresh(ctx context.Context, streamerID string) (int, error) {
	updated, err := s.sweeper.SweepStreamer(ctx, streamerID)
	if err != nil {
		return 0, apperrors.GeneralError(err)
	}
	return updated, nil
}

// QuoteFee returns the forwarding fee for donating from the named chain.
func (s *Service) QuoteFee(ctx context.Context, sourceChain string) (*iris.FeeQuote, error) {
	chain, ok := s.registry.ByName(sourceChain)
	if !ok {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unsupported source chain %q", sourceChain))
	}

	quote, err := s.fees.GetFeeQuote(ctx, chain.Domain, chains.ArcDomain)
	if err != nil {
		return nil, apperrors.DependencyError(err, "fee quote unavailable")
	}
	return quote, nil
}

// QuoteFeeByDomain returns the forwarding fee for donating from the chain
// with the given CCTP domain id.
func (s *Service) QuoteFeeByDomain(ctx context.Context, sourceDomain uint32) (*iris.FeeQuote, error) {
	if _, ok := s.registry.ByDomain(sourceDomain); !ok {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unsupported source domain %d", sourceDomain))
	}

	quote, err := s.fees.GetFeeQuote(ctx, sourceDomain, chains.ArcDomain)
	if err != nil {
		return nil, apperrors.DependencyError(err, "fee quote unavailable")
	}
	return quote, nil
}

// LatestAlert returns the alert payload of the most recently completed
// donation, for overlay recovery after a dropped stream. A non-nil after
// restricts the search to donations created after that instant. A nil event
// with a nil error means nothing has completed yet, which is not a fault.
func (s *Service) LatestAlert(ctx context.Context, streamerID string, after *time.Time) (*donation.AlertEvent, error) {
	d, err := s.store.LatestCompleted(ctx, streamerID, after)
	if err != nil {
		if errors.Is(err, donationstore.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.GeneralError(err)
	}
	event := donation.AlertFor(d)
	return &event, nil
}

// Package poller tracks freshly created donations one by one, polling chain
// and attestation state on a short interval so alerts fire within seconds of
// the mint landing. The batch reconciler covers anything the poller misses.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/internal/metrics"
	"github.com/arcstream/cctp-middleware/pkg/chains"
	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/iris"
	"github.com/arcstream/cctp-middleware/pkg/receipt"
	"github.com/arcstream/cctp-middleware/pkg/settlement"
)

// Store provides the donation persistence operations polling needs.
type Store interface {
	GetDonation(ctx context.Context, id string) (*donation.Donation, error)
	TransitionStatus(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error)
}

// ReceiptChecker reports the source-chain fate of a burn transaction.
type ReceiptChecker interface {
	Check(ctx context.Context, rpcURL, txHash string) receipt.Status
}

// AttestationClient reads bridge message status from the attestation service.
type AttestationClient interface {
	GetMessageStatus(ctx context.Context, sourceDomain uint32, txHash string) (*iris.Message, error)
}

// AlertSink receives completion alerts for fan-out to overlay clients.
type AlertSink interface {
	Publish(streamerID string, event donation.AlertEvent)
}

// Poller runs one polling goroutine per tracked donation.
type Poller struct {
	store       Store
	receipts    ReceiptChecker
	iris        AttestationClient
	alerts      AlertSink
	registry    *chains.Registry
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller
func New(store Store, receipts ReceiptChecker, irisClient AttestationClient, alerts AlertSink, registry *chains.Registry, interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		store:       store,
		receipts:    receipts,
		iris:        irisClient,
		alerts:      alerts,
		registry:    registry,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Watch starts tracking one donation in the background. It returns
// immediately; the goroutine exits when the donation reaches a terminal
// status, attempts are exhausted, or the poller is stopped.
func (p *Poller) Watch(donationID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(donationID)
	}()
}

// Stop cancels all tracking goroutines and waits for them. Untracked
// donations stay in the store for the periodic sweeper to finish.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) run(donationID string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug("Tracking donation", zap.String("donation_id", donationID))

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Poller stopped, leaving donation to the sweeper",
				zap.String("donation_id", donationID))
			return
		case <-ticker.C:
		}

		done, err := p.pollOnce(donationID)
		if err != nil {
			p.logger.Warn("Donation poll attempt failed",
				zap.String("donation_id", donationID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		if done {
			return
		}
	}

	// Attempts exhausted without a terminal status. The burn almost
	// certainly landed by now, so mark the record FORWARDING and let the
	// sweeper carry it home. The guard makes this a no-op if the record
	// settled in the meantime.
	applied, err := p.store.TransitionStatus(p.ctx, donationID, donation.StatusForwarding, "")
	if err != nil {
		p.logger.Error("Failed to park exhausted donation",
			zap.String("donation_id", donationID),
			zap.Error(err))
		return
	}
	if applied {
		metrics.StatusTransitions.WithLabelValues(string(donation.StatusForwarding)).Inc()
	}
	p.logger.Info("Donation polling exhausted, deferred to sweeper",
		zap.String("donation_id", donationID),
		zap.Int("attempts", p.maxAttempts))
}

// pollOnce evaluates one attempt. It returns true when tracking can stop.
func (p *Poller) pollOnce(donationID string) (bool, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.interval)
	defer cancel()

	d, err := p.store.GetDonation(ctx, donationID)
	if err != nil {
		return false, err
	}
	if d.Status.IsTerminal() {
		return true, nil
	}

	chain, ok := p.registry.ByName(d.SourceChain)
	if !ok {
		return false, fmt.Errorf("unknown source chain %q", d.SourceChain)
	}

	rcpt := receipt.StatusPending
	if d.Status == donation.StatusPending {
		rcpt = p.receipts.Check(ctx, chain.RPCURL, d.SourceTxHash)
		if rcpt == receipt.StatusPending {
			// Burn not mined yet, nothing to ask the attestation
			// service about.
			return false, nil
		}
	}

	var msg *iris.Message
	if rcpt != receipt.StatusReverted {
		msg, err = p.iris.GetMessageStatus(ctx, chain.Domain, d.SourceTxHash)
		if err != nil {
			return false, err
		}
	}

	tr := settlement.Step(d.Status, rcpt, msg)
	if !tr.Changed {
		return false, nil
	}

	applied, err := p.store.TransitionStatus(ctx, d.ID, tr.Status, tr.ForwardTxHash)
	if err != nil {
		return false, err
	}
	if !applied {
		// Lost the race with another driver, re-read next tick.
		return false, nil
	}

	metrics.StatusTransitions.WithLabelValues(string(tr.Status)).Inc()
	p.logger.Info("Donation transitioned",
		zap.String("donation_id", d.ID),
		zap.String("from", string(d.Status)),
		zap.String("to", string(tr.Status)))

	if tr.Notify {
		alerted := *d
		alerted.ForwardTxHash = tr.ForwardTxHash
		p.alerts.Publish(d.StreamerID, donation.AlertFor(&alerted))
	}

	return tr.Status.IsTerminal(), nil
}

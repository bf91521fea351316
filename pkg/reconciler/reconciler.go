// Package reconciler drives donation settlement records toward a terminal
// status by replaying chain receipts and attestation state. It is the batch
// safety net behind the per-transaction poller: everything it does is
// idempotent, and a sweep over already-settled records changes nothing.
package reconciler

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

const sweepTimeout = 2 * time.Minute

// Store provides the donation persistence operations reconciliation needs.
type Store interface {
	ListStreamerIDs(ctx context.Context) ([]string, error)
	ListNonTerminal(ctx context.Context, streamerID string, limit int) ([]*donation.Donation, error)
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

// Reconciler sweeps non-terminal donations and applies settlement transitions.
type Reconciler struct {
	store      Store
	receipts   ReceiptChecker
	iris       AttestationClient
	alerts     AlertSink
	registry   *chains.Registry
	sweepLimit int
	logger     *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new Reconciler
func New(store Store, receipts ReceiptChecker, irisClient AttestationClient, alerts AlertSink, registry *chains.Registry, sweepLimit int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		receipts:   receipts,
		iris:       irisClient,
		alerts:     alerts,
		registry:   registry,
		sweepLimit: sweepLimit,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// SweepAll reconciles every streamer's open donations and returns the number
// of records updated.
func (r *Reconciler) SweepAll(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	streamerIDs, err := r.store.ListStreamerIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, streamerID := range streamerIDs {
		n, err := r.SweepStreamer(ctx, streamerID)
		if err != nil {
			r.logger.Error("Sweep failed for streamer",
				zap.String("streamer_id", streamerID),
				zap.Error(err))
			continue
		}
		updated += n
	}

	r.logger.Info("Reconciliation sweep completed",
		zap.Int("streamers", len(streamerIDs)),
		zap.Int("updated", updated),
		zap.Duration("duration", time.Since(start)))
	return updated, nil
}

// SweepStreamer reconciles one streamer's newest open donations and returns
// the number of records updated. A failure on one record never aborts the
// rest of the batch.
func (r *Reconciler) SweepStreamer(ctx context.Context, streamerID string) (int, error) {
	records, err := r.store.ListNonTerminal(ctx, streamerID, r.sweepLimit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, d := range records {
		changed, err := r.reconcileOne(ctx, d)
		if err != nil {
			r.logger.Warn("Failed to reconcile donation",
				zap.String("donation_id", d.ID),
				zap.Error(err))
			continue
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, d *donation.Donation) (bool, error) {
	chain, ok := r.registry.ByName(d.SourceChain)
	if !ok {
		return false, fmt.Errorf("unknown source chain %q", d.SourceChain)
	}

	// A pending record gets its burn receipt checked first: a reverted burn
	// settles as FAILED without touching the attestation service, and an
	// unmined one is left alone until the next sweep.
	rcpt := receipt.StatusPending
	if d.Status == donation.StatusPending {
		rcpt = r.receipts.Check(ctx, chain.RPCURL, d.SourceTxHash)
		switch rcpt {
		case receipt.StatusReverted:
			return r.apply(ctx, d, settlement.Transition{
				Status:  donation.StatusFailed,
				Changed: true,
			})
		case receipt.StatusPending:
			return false, nil
		}
	}

	msg, err := r.iris.GetMessageStatus(ctx, chain.Domain, d.SourceTxHash)
	if err != nil {
		return false, err
	}

	return r.apply(ctx, d, settlement.Step(d.Status, rcpt, msg))
}

// apply persists a transition and emits the completion alert when the guarded
// update actually changed the row. The row guard is what makes the alert
// exactly-once when the poller and the sweeper race.
func (r *Reconciler) apply(ctx context.Context, d *donation.Donation, tr settlement.Transition) (bool, error) {
	if !tr.Changed {
		return false, nil
	}

	applied, err := r.store.TransitionStatus(ctx, d.ID, tr.Status, tr.ForwardTxHash)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	metrics.StatusTransitions.WithLabelValues(string(tr.Status)).Inc()
	metrics.SweepUpdated.Inc()
	r.logger.Info("Donation transitioned",
		zap.String("donation_id", d.ID),
		zap.String("from", string(d.Status)),
		zap.String("to", string(tr.Status)))

	if tr.Notify {
		alerted := *d
		alerted.ForwardTxHash = tr.ForwardTxHash
		r.alerts.Publish(d.StreamerID, donation.AlertFor(&alerted))
	}
	return true, nil
}

// StartPeriodic starts a background goroutine that sweeps periodically
func (r *Reconciler) StartPeriodic(interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.logger.Info("Started periodic reconciliation", zap.Duration("interval", interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				if _, err := r.SweepAll(ctx); err != nil {
					r.logger.Error("Periodic sweep failed", zap.Error(err))
				}
				cancel()
			case <-r.stopCh:
				r.logger.Info("Stopping periodic reconciliation")
				return
			}
		}
	}()
}

// Stop stops the periodic reconciliation
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

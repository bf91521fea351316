// Package settlement implements the transition rules for a donation
// as it moves from a source-chain burn to a forwarded mint.
package settlement

import (
	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/iris"
	"github.com/arcstream/cctp-middleware/pkg/receipt"
)

// Transition is the outcome of evaluating a donation against the latest
// chain and attestation evidence.
type Transition struct {
	Status        donation.Status
	ForwardTxHash string
	// Notify is set when the transition enters Completed. The caller only
	// emits the alert if its guarded store update actually changed a row.
	Notify bool
	// Changed reports whether the caller needs to persist anything.
	Changed bool
}

// Step evaluates one reconciliation step. It never moves a record out of a
// terminal status, and it treats missing evidence as "no change" so that a
// flaky RPC or attestation outage cannot fail a healthy settlement.
func Step(current donation.Status, rcpt receipt.Status, msg *iris.Message) Transition {
	if current.IsTerminal() {
		return Transition{Status: current}
	}

	// A reverted burn can never settle.
	if current == donation.StatusPending && rcpt == receipt.StatusReverted {
		return Transition{Status: donation.StatusFailed, Changed: true}
	}

	// The attestation service only knows about messages whose burn
	// succeeded, so a message implies the receipt check can be skipped.
	if msg != nil {
		if msg.Complete() {
			return Transition{
				Status:        donation.StatusCompleted,
				ForwardTxHash: msg.ForwardTxHash,
				Notify:        true,
				Changed:       true,
			}
		}
		if current == donation.StatusPending {
			return Transition{Status: donation.StatusForwarding, Changed: true}
		}
		return Transition{Status: current}
	}

	// A successful receipt alone is not forwarding evidence. The record
	// stays PENDING until the attestation service knows the message.
	return Transition{Status: current}
}

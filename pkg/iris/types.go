package iris

// Message statuses reported by the attestation service.
const (
	MessageStatusComplete        = "complete"
	MessageStatusPendingConfirms = "pending_confirmations"
)

// standardFinalityThreshold selects the Standard fee tier, which is the tier
// the donation form burns with.
const standardFinalityThreshold = 2000

// FeeTier is one entry of the fee schedule returned for a source/destination
// domain pair.
type FeeTier struct {
	FinalityThreshold int        `json:"finalityThreshold"`
	MinimumFee        float64    `json:"minimumFee"`
	ForwardFee        ForwardFee `json:"forwardFee"`
}

// ForwardFee is the relayer's forwarding cost estimate in USDC base units.
type ForwardFee struct {
	High int64 `json:"high"`
	Med  int64 `json:"med"`
}

// FeeQuote is the fee presented to a donor before burning, in USDC base units
// (6 decimals), together with the raw tiers for display.
type FeeQuote struct {
	Fee   int64     `json:"fee,string"`
	Tiers []FeeTier `json:"tiers"`
}

// Message is one cross-chain message observed by the attestation service for
// a burn transaction.
type Message struct {
	Status        string `json:"status"`
	ForwardTxHash string `json:"forwardTxHash"`
}

// Complete reports whether the message finished forwarding on the destination
// chain. A complete message always carries the forward transaction hash.
func (m *Message) Complete() bool {
	return m != nil && m.Status == MessageStatusComplete && m.ForwardTxHash != ""
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}

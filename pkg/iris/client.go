// Package iris is a client for the CCTP v2 attestation service. It covers the
// two calls the settlement engine needs: fee quotes before a burn, and message
// status while a burn is being forwarded.
package iris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/internal/metrics"
)

// usdcBaseUnits converts a decimal USDC fee to 6-decimal base units.
var usdcBaseUnits = decimal.NewFromInt(1_000_000)

// Client calls the attestation service over HTTPS.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an attestation service client.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("iris config: %w", err)
	}

	settings := applyOptions(opts)
	httpClient := settings.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     settings.logger,
	}, nil
}

// GetFeeQuote fetches the fee schedule for a source/destination domain pair
// and computes the fee to present to the donor.
//
// The tier with the Standard finality threshold is selected (first tier as a
// fallback) and the quote is max(ceil(minimumFee in base units), forward fee).
// The burn contract enforces a minimum fee check at burn time, so under-quoting
// reverts the donor's transaction; the forward fee covers the relayer. Errors
// here propagate: proceeding with a wrong fee moves funds incorrectly.
func (c *Client) GetFeeQuote(ctx context.Context, sourceDomain, destDomain uint32) (*FeeQuote, error) {
	url := fmt.Sprintf("%s/v2/burn/USDC/fees/%d/%d?forward=true", c.baseURL, sourceDomain, destDomain)

	var tiers []FeeTier
	if err := c.getJSON(ctx, url, &tiers); err != nil {
		metrics.IrisRequests.WithLabelValues("fees", "error").Inc()
		return nil, fmt.Errorf("fee quote for domain %d: %w", sourceDomain, err)
	}
	metrics.IrisRequests.WithLabelValues("fees", "ok").Inc()
	if len(tiers) == 0 {
		return nil, fmt.Errorf("fee quote for domain %d: empty fee schedule", sourceDomain)
	}

	tier := tiers[0]
	for _, t := range tiers {
		if t.FinalityThreshold == standardFinalityThreshold {
			tier = t
			break
		}
	}

	minimumFeeRaw := decimal.NewFromFloat(tier.MinimumFee).Mul(usdcBaseUnits).Ceil().IntPart()
	forwardFee := tier.ForwardFee.High
	if forwardFee == 0 {
		forwardFee = tier.ForwardFee.Med
	}

	fee := minimumFeeRaw
	if forwardFee > fee {
		fee = forwardFee
	}

	return &FeeQuote{Fee: fee, Tiers: tiers}, nil
}

// GetMessageStatus polls the attestation service for the message keyed by
// source domain and burn transaction hash. It returns (nil, nil) both when no
// message has been observed yet and on transient upstream failures: a status
// poll yields either new information or none, it never fails a sweep.
func (c *Client) GetMessageStatus(ctx context.Context, sourceDomain uint32, txHash string) (*Message, error) {
	url := fmt.Sprintf("%s/v2/messages/%d?transactionHash=%s", c.baseURL, sourceDomain, txHash)

	var resp messagesResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		metrics.IrisRequests.WithLabelValues("messages", "error").Inc()
		c.logger.Debug("Message status lookup failed",
			zap.Uint32("source_domain", sourceDomain),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return nil, nil
	}
	metrics.IrisRequests.WithLabelValues("messages", "ok").Inc()

	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	return &msg, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

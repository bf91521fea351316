// Package wallet is a client for the Circle user-controlled wallets API. It
// backs streamers who let the platform custody their destination wallet
// instead of connecting their own.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/pkg/config"
)

// Client calls the wallet service on behalf of the API server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a wallet client. The API key is read from the environment
// variable named in the config so it never lands in config files.
func NewClient(cfg *config.WalletConfig, logger *zap.Logger) (*Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("wallet API key not set in %s", cfg.APIKeyEnv)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
	}, nil
}

// Wallet is one custodial wallet belonging to a user.
type Wallet struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
	State      string `json:"state"`
}

// Balance is one token balance inside a wallet.
type Balance struct {
	Amount string `json:"amount"`
	Token  struct {
		Symbol string `json:"symbol"`
	} `json:"token"`
}

// UserToken is a short-lived session for user-scoped wallet calls.
type UserToken struct {
	UserToken     string `json:"userToken"`
	EncryptionKey string `json:"encryptionKey"`
}

// CreateUser registers a wallet user. An already-registered user is not an
// error so the call is safe to repeat.
func (c *Client) CreateUser(ctx context.Context, userID string) error {
	body := map[string]string{"userId": userID}
	err := c.do(ctx, http.MethodPost, "/v1/w3s/users", "", body, nil)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create wallet user: %w", err)
	}
	return nil
}

// GetUserToken issues a session token for a wallet user.
func (c *Client) GetUserToken(ctx context.Context, userID string) (*UserToken, error) {
	body := map[string]string{"userId": userID}
	var out struct {
		Data UserToken `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/w3s/users/token", "", body, &out); err != nil {
		return nil, fmt.Errorf("get user token: %w", err)
	}
	return &out.Data, nil
}

// InitializeUser starts PIN setup and wallet creation on the destination
// chain, returning the challenge the frontend completes with the wallet SDK.
// An already-initialized user returns an empty challenge ID.
func (c *Client) InitializeUser(ctx context.Context, userToken, blockchain string) (string, error) {
	body := map[string]any{
		"idempotencyKey": uuid.NewString(),
		"blockchains":    []string{blockchain},
	}
	var out struct {
		Data struct {
			ChallengeID string `json:"challengeId"`
		} `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/w3s/user/initialize", userToken, body, &out)
	if err != nil {
		if strings.Contains(err.Error(), "already initialized") {
			c.logger.Debug("Wallet user already initialized")
			return "", nil
		}
		return "", fmt.Errorf("initialize wallet user: %w", err)
	}
	return out.Data.ChallengeID, nil
}

// ListWallets returns the wallets owned by a user.
func (c *Client) ListWallets(ctx context.Context, userID string) ([]Wallet, error) {
	var out struct {
		Data struct {
			Wallets []Wallet `json:"wallets"`
		} `json:"data"`
	}
	path := "/v1/w3s/wallets?userId=" + userID
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return out.Data.Wallets, nil
}

// GetBalances returns the token balances of one wallet.
func (c *Client) GetBalances(ctx context.Context, walletID string) ([]Balance, error) {
	var out struct {
		Data struct {
			TokenBalances []Balance `json:"tokenBalances"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/v1/w3s/wallets/%s/balances", walletID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	return out.Data.TokenBalances, nil
}

// CreateTransferChallenge starts a user-approved USDC transfer out of a
// custodial wallet and returns the challenge ID for the frontend to complete.
func (c *Client) CreateTransferChallenge(ctx context.Context, userToken, walletID, tokenID, destination, amount string) (string, error) {
	body := map[string]any{
		"idempotencyKey":     uuid.NewString(),
		"walletId":           walletID,
		"tokenId":            tokenID,
		"destinationAddress": destination,
		"amounts":            []string{amount},
		"feeLevel":           "MEDIUM",
	}
	var out struct {
		Data struct {
			ChallengeID string `json:"challengeId"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/w3s/user/transactions/transfer", userToken, body, &out); err != nil {
		return "", fmt.Errorf("create transfer challenge: %w", err)
	}
	return out.Data.ChallengeID, nil
}

func (c *Client) do(ctx context.Context, method, path, userToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if userToken != "" {
		req.Header.Set("X-User-Token", userToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(excerpt))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/arcstream/cctp-middleware/pkg/app/errors"
	apphttp "github.com/arcstream/cctp-middleware/pkg/app/http"
	"github.com/arcstream/cctp-middleware/pkg/auth"
	"github.com/arcstream/cctp-middleware/pkg/wallet"
)

// arcBlockchain is the wallet service identifier for the destination chain.
const arcBlockchain = "ARC-TESTNET"

type walletHandlers struct {
	client *wallet.Client
	logger *zap.Logger
}

// registerWalletRoutes exposes custodial wallet management for streamers who
// do not bring their own wallet. All routes require a streamer token.
func registerWalletRoutes(r chi.Router, client *wallet.Client, jwtValidator *auth.JWTValidator, logger *zap.Logger) {
	h := &walletHandlers{client: client, logger: logger}

	r.Group(func(gr chi.Router) {
		gr.Use(jwtValidator.Middleware)

		gr.Post("/wallet/session", apphttp.HandleError(h.createSession))
		gr.Get("/wallet", apphttp.HandleError(h.getWallets))
		gr.Post("/wallet/transfer", apphttp.HandleError(h.createTransfer))
	})
}

// createSession registers the streamer with the wallet service and returns a
// session token plus the PIN setup challenge, if one is still needed.
func (h *walletHandlers) createSession(w http.ResponseWriter, r *http.Request) error {
	streamerID, ok := auth.StreamerIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "not authenticated")
	}

	if err := h.client.CreateUser(r.Context(), streamerID); err != nil {
		return apperrors.DependencyError(err, "wallet service unavailable")
	}

	token, err := h.client.GetUserToken(r.Context(), streamerID)
	if err != nil {
		return apperrors.DependencyError(err, "wallet service unavailable")
	}

	challengeID, err := h.client.InitializeUser(r.Context(), token.UserToken, arcBlockchain)
	if err != nil {
		return apperrors.DependencyError(err, "wallet service unavailable")
	}

	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{
		"userToken":     token.UserToken,
		"encryptionKey": token.EncryptionKey,
		"challengeId":   challengeID,
	})
}

// createTransfer starts a user-approved withdrawal from a custodial wallet.
func (h *walletHandlers) createTransfer(w http.ResponseWriter, r *http.Request) error {
	if _, ok := auth.StreamerIDFromContext(r.Context()); !ok {
		return apperrors.UnAuthorizedError(nil, "not authenticated")
	}

	var req struct {
		UserToken          string `json:"userToken"`
		WalletID           string `json:"walletId"`
		TokenID            string `json:"tokenId"`
		DestinationAddress string `json:"destinationAddress"`
		Amount             string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if req.UserToken == "" || req.WalletID == "" || req.TokenID == "" || req.DestinationAddress == "" || req.Amount == "" {
		return apperrors.BadRequestError(nil, "all transfer fields are required")
	}

	challengeID, err := h.client.CreateTransferChallenge(r.Context(), req.UserToken, req.WalletID, req.TokenID, req.DestinationAddress, req.Amount)
	if err != nil {
		return apperrors.DependencyError(err, "wallet service unavailable")
	}

	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"challengeId": challengeID})
}

// getWallets lists the streamer's custodial wallets with their balances.
func (h *walletHandlers) getWallets(w http.ResponseWriter, r *http.Request) error {
	streamerID, ok := auth.StreamerIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "not authenticated")
	}

	wallets, err := h.client.ListWallets(r.Context(), streamerID)
	if err != nil {
		return apperrors.DependencyError(err, "wallet service unavailable")
	}

	type walletInfo struct {
		wallet.Wallet
		Balances []wallet.Balance `json:"balances,omitempty"`
	}

	out := make([]walletInfo, len(wallets))
	for i, wlt := range wallets {
		out[i] = walletInfo{Wallet: wlt}
		balances, err := h.client.GetBalances(r.Context(), wlt.ID)
		if err != nil {
			h.logger.Warn("Failed to fetch wallet balances",
				zap.String("wallet_id", wlt.ID),
				zap.Error(err))
			continue
		}
		out[i].Balances = balances
	}

	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"wallets": out})
}

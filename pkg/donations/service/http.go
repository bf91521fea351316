package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/pkg/alerts"
	apperrors "github.com/arcstream/cctp-middleware/pkg/app/errors"
	apphttp "github.com/arcstream/cctp-middleware/pkg/app/http"
	"github.com/arcstream/cctp-middleware/pkg/auth"
	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/iris"
)

const requestTimeout = 60 * time.Second

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service *Service
	hub     *alerts.Hub
	stream  *alerts.StreamHandler
	logger  *zap.Logger
}

// RegisterRoutes registers donation and alert endpoints on the given chi
// router. authMiddleware guards the streamer-only routes.
func RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler, service *Service, hub *alerts.Hub, stream *alerts.StreamHandler, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		hub:     hub,
		stream:  stream,
		logger:  logger,
	}

	// The alert stream stays outside the request timeout, it holds its
	// response open for the lifetime of the overlay connection.
	r.Get("/alerts/{streamerID}/stream", h.streamAlerts)

	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Timeout(requestTimeout))

		gr.Post("/donations", apphttp.HandleError(h.createDonation))
		gr.Get("/donations/{id}", apphttp.HandleError(h.getDonation))
		gr.Put("/donations/{id}/status", apphttp.HandleError(h.updateStatus))
		gr.Get("/cctp/fees", apphttp.HandleError(h.quoteFee))
		gr.Get("/cctp/chains", apphttp.HandleError(h.listChains))
		gr.Get("/cctp/burn-params", apphttp.HandleError(h.burnParams))
		gr.Post("/donations/client-errors", apphttp.HandleError(h.classifyClientError))
		gr.Get("/alerts/{streamerID}/latest", apphttp.HandleError(h.latestAlert))

		gr.Group(func(ar chi.Router) {
			ar.Use(authMiddleware)
			ar.Get("/donations", apphttp.HandleError(h.listDonations))
			ar.Post("/donations/refresh", apphttp.HandleError(h.refresh))
			ar.Post("/alerts/test", apphttp.HandleError(h.testAlert))
		})
	})
}

type donationResponse struct {
	ID            string `json:"id"`
	StreamerID    string `json:"streamerId"`
	DonorAddress  string `json:"donorAddress"`
	DonorName     string `json:"donorName,omitempty"`
	Amount        string `json:"amount"`
	Message       string `json:"message,omitempty"`
	SourceChain   string `json:"sourceChain"`
	SourceTxHash  string `json:"sourceTxHash"`
	ForwardTxHash string `json:"forwardTxHash,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func toResponse(d *donation.Donation) donationResponse {
	return donationResponse{
		ID:            d.ID,
		StreamerID:    d.StreamerID,
		DonorAddress:  d.DonorAddress,
		DonorName:     d.DonorName,
		Amount:        d.Amount.String(),
		Message:       d.Message,
		SourceChain:   d.SourceChain,
		SourceTxHash:  d.SourceTxHash,
		ForwardTxHash: d.ForwardTxHash,
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *HTTP) createDonation(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req CreateDonationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}

	d, err := h.service.CreateDonation(r.Context(), &req)
	if err != nil {
		return err
	}

	return apphttp.WriteJSON(w, http.StatusCreated, toResponse(d))
}

func (h *HTTP) getDonation(w http.ResponseWriter, r *http.Request) error {
	d, err := h.service.GetDonation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Status        string `json:"status"`
		ForwardTxHash string `json:"forwardTxHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}

	d, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), donation.Status(req.Status), req.ForwardTxHash)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, toResponse(d))
}

// listDonations returns the authenticated streamer's donation history.
func (h *HTTP) listDonations(w http.ResponseWriter, r *http.Request) error {
	streamerID, ok := auth.StreamerIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "not authenticated")
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	records, total, err := h.service.ListDonations(r.Context(),
		streamerID,
		donation.Status(q.Get("status")),
		page, limit)
	if err != nil {
		return err
	}

	out := make([]donationResponse, len(records))
	for i, d := range records {
		out[i] = toResponse(d)
	}
	totalPages := (total + limit - 1) / limit
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{
		"donations":  out,
		"total":      total,
		"page":       page,
		"totalPages": totalPages,
	})
}

func (h *HTTP) refresh(w http.ResponseWriter, r *http.Request) error {
	streamerID, ok := auth.StreamerIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "not authenticated")
	}

	updated, err := h.service.Refresh(r.Context(), streamerID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *HTTP) quoteFee(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	var err error
	var quote *iris.FeeQuote
	switch {
	case q.Get("sourceDomain") != "":
		var dom uint64
		dom, err = strconv.ParseUint(q.Get("sourceDomain"), 10, 32)
		if err != nil {
			return apperrors.BadRequestError(err, "sourceDomain must be a CCTP domain id")
		}
		quote, err = h.service.QuoteFeeByDomain(r.Context(), uint32(dom))
	case q.Get("sourceChain") != "":
		quote, err = h.service.QuoteFee(r.Context(), q.Get("sourceChain"))
	default:
		return apperrors.BadRequestError(nil, "sourceDomain query parameter required")
	}
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, quote)
}

func (h *HTTP) listChains(w http.ResponseWriter, r *http.Request) error {
	type chainInfo struct {
		Name             string `json:"name"`
		ShortName        string `json:"shortName"`
		ChainID          int64  `json:"chainId"`
		Domain           uint32 `json:"domain"`
		USDC             string `json:"usdc"`
		TokenMessengerV2 string `json:"tokenMessengerV2"`
	}

	all := h.service.registry.All()
	out := make([]chainInfo, len(all))
	for i, c := range all {
		out[i] = chainInfo{
			Name:             c.Name,
			ShortName:        c.ShortName,
			ChainID:          c.ChainID,
			Domain:           c.Domain,
			USDC:             c.USDC,
			TokenMessengerV2: c.TokenMessengerV2,
		}
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"chains": out})
}

// burnParams returns the contract addresses and encoded parameters a donor
// client needs to submit the burn for one streamer on one source chain.
func (h *HTTP) burnParams(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	streamerID := q.Get("streamerId")
	sourceChain := q.Get("sourceChain")
	if streamerID == "" || sourceChain == "" {
		return apperrors.BadRequestError(nil, "streamerId and sourceChain query parameters required")
	}

	params, err := h.service.BurnParamsFor(r.Context(), streamerID, sourceChain)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, params)
}

// classifyClientError translates a raw wallet error from the donor flow into
// the message the donation form shows. Raw error text never reaches donors.
func (h *HTTP) classifyClientError(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if req.Error == "" {
		return apperrors.BadRequestError(nil, "error field required")
	}

	msg := donation.ClassifyClientError(errors.New(req.Error))
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// streamAlerts hands the connection to the SSE handler. It bypasses
// HandleError because the response is a long-lived event stream.
func (h *HTTP) streamAlerts(w http.ResponseWriter, r *http.Request) {
	h.stream.Serve(w, r, chi.URLParam(r, "streamerID"))
}

func (h *HTTP) latestAlert(w http.ResponseWriter, r *http.Request) error {
	var after *time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.BadRequestError(err, "after must be an RFC3339 timestamp")
		}
		after = &t
	}

	event, err := h.service.LatestAlert(r.Context(), chi.URLParam(r, "streamerID"), after)
	if err != nil {
		return err
	}
	// Overlays poll this for catch-up; an empty history is a normal answer.
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"alert": event})
}

// testAlert publishes a sample alert to the caller's own stream so streamers
// can check their overlay without sending real funds.
func (h *HTTP) testAlert(w http.ResponseWriter, r *http.Request) error {
	streamerID, ok := auth.StreamerIDFromContext(r.Context())
	if !ok {
		return apperrors.UnAuthorizedError(nil, "not authenticated")
	}

	h.hub.Publish(streamerID, donation.AlertEvent{
		ID:           "test",
		DonorAddress: "0x0000000000000000000000000000000000000000",
		DonorName:    "test donor",
		Amount:       decimal.RequireFromString("5"),
		Message:      "This is a test alert",
		SourceChain:  "ethereum-sepolia",
	})
	return apphttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

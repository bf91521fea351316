package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/pkg/alerts"
	"github.com/arcstream/cctp-middleware/pkg/auth"
	"github.com/arcstream/cctp-middleware/pkg/chains"
	"github.com/arcstream/cctp-middleware/pkg/donation"
	"github.com/arcstream/cctp-middleware/pkg/donationstore"
)

// fakeAuth injects a fixed streamer identity, standing in for the JWT middleware.
func fakeAuth(streamerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithStreamerID(r.Context(), streamerID)))
		})
	}
}

func newTestRouter(t *testing.T, store *mockStore, hub *alerts.Hub) (chi.Router, *mockWatcher) {
	t.Helper()

	watcher := &mockWatcher{}
	if hub == nil {
		hub = alerts.NewHub(4, zap.NewNop())
	}

	svc := New(store, chains.Default(), &mockFeeQuoter{}, watcher, &mockSweeper{
		sweepStreamerFn: func(ctx context.Context, streamerID string) (int, error) { return 2, nil },
	}, nil, hub, zap.NewNop())
	stream := alerts.NewStreamHandler(hub, time.Minute, zap.NewNop())

	r := chi.NewRouter()
	RegisterRoutes(r, fakeAuth("streamer-1"), svc, hub, stream, zap.NewNop())
	return r, watcher
}

func TestCreateDonationEndpoint(t *testing.T) {
	store := &mockStore{
		getStreamerFn: func(ctx context.Context, id string) (*donation.Streamer, error) {
			return testStreamer(), nil
		},
	}
	router, watcher := newTestRouter(t, store, nil)

	payload := `{
		"streamerId": "streamer-1",
		"donorAddress": "` + testDonor + `",
		"amount": "12.5",
		"sourceChain": "base-sepolia",
		"sourceTxHash": "` + testTxHash + `"
	}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp donationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PENDING", resp.Status)
	require.Equal(t, []string{resp.ID}, watcher.watchedIDs())
}

func TestCreateDonationEndpointErrors(t *testing.T) {
	store := &mockStore{
		getStreamerFn: func(ctx context.Context, id string) (*donation.Streamer, error) {
			return nil, donationstore.ErrNotFound
		},
	}
	router, _ := newTestRouter(t, store, nil)

	// Malformed JSON.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown streamer.
	payload := `{
		"streamerId": "ghost",
		"donorAddress": "` + testDonor + `",
		"amount": "1",
		"sourceChain": "base-sepolia",
		"sourceTxHash": "` + testTxHash + `"
	}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations", strings.NewReader(payload)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDonationEndpointConflict(t *testing.T) {
	store := &mockStore{
		getStreamerFn: func(ctx context.Context, id string) (*donation.Streamer, error) {
			return testStreamer(), nil
		},
		createDonationFn: func(ctx context.Context, d *donation.Donation) error {
			return donationstore.ErrDuplicateTx
		},
	}
	router, _ := newTestRouter(t, store, nil)

	payload := `{
		"streamerId": "streamer-1",
		"donorAddress": "` + testDonor + `",
		"amount": "1",
		"sourceChain": "base-sepolia",
		"sourceTxHash": "` + testTxHash + `"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations", strings.NewReader(payload)))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &mockStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp["updated"])
}

func TestListChainsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &mockStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cctp/chains", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Chains []struct {
			Name   string `json:"name"`
			Domain uint32 `json:"domain"`
		} `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Chains, 6)
}

func TestTestAlertEndpoint(t *testing.T) {
	hub := alerts.NewHub(4, zap.NewNop())
	router, _ := newTestRouter(t, &mockStore{}, hub)

	events, cancel := hub.Subscribe("streamer-1")
	defer cancel()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case event := <-events:
		require.Equal(t, "test", event.ID)
	default:
		t.Fatalf("expected a test alert on the stream")
	}
}

func TestListDonationsEndpoint(t *testing.T) {
	store := &mockStore{
		countDonationsFn: func(ctx context.Context, opts ...donationstore.QueryOption) (int, error) {
			return 25, nil
		},
		listDonationsFn: func(ctx context.Context, opts ...donationstore.QueryOption) ([]*donation.Donation, error) {
			options := &donationstore.QueryOptions{}
			for _, opt := range opts {
				opt(options)
			}
			require.Equal(t, 10, options.Limit)
			require.Equal(t, 10, options.Offset)
			require.NotNil(t, options.StreamerID)
			require.Equal(t, "streamer-1", *options.StreamerID)
			out := make([]*donation.Donation, 10)
			for i := range out {
				out[i] = &donation.Donation{ID: "d", Status: donation.StatusCompleted}
			}
			return out, nil
		},
	}
	router, _ := newTestRouter(t, store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/donations?page=2&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Donations  []json.RawMessage `json:"donations"`
		Total      int               `json:"total"`
		Page       int               `json:"page"`
		TotalPages int               `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Donations, 10)
	require.Equal(t, 25, resp.Total)
	require.Equal(t, 2, resp.Page)
	require.Equal(t, 3, resp.TotalPages)
}

func TestQuoteFeeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &mockStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cctp/fees?sourceDomain=6", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var quote struct {
		Fee string `json:"fee"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, "1000", quote.Fee)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cctp/fees", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cctp/fees?sourceDomain=banana", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusEndpointCarriesForwardHash(t *testing.T) {
	record := &donation.Donation{ID: "d1", StreamerID: "streamer-1", Status: donation.StatusForwarding}
	var gotStatus donation.Status
	var gotForwardHash string
	store := &mockStore{
		getDonationFn: func(ctx context.Context, id string) (*donation.Donation, error) {
			return record, nil
		},
		transitionStatusFn: func(ctx context.Context, id string, status donation.Status, forwardTxHash string) (bool, error) {
			gotStatus = status
			gotForwardHash = forwardTxHash
			return true, nil
		},
	}
	router, _ := newTestRouter(t, store, nil)

	body := strings.NewReader(`{"status": "COMPLETED", "forwardTxHash": "0xmint"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/donations/d1/status", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, donation.StatusCompleted, gotStatus)
	require.Equal(t, "0xmint", gotForwardHash)

	// Completing without the mint hash is rejected before the store is hit.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/donations/d1/status",
		strings.NewReader(`{"status": "COMPLETED"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBurnParamsEndpoint(t *testing.T) {
	store := &mockStore{
		getStreamerFn: func(ctx context.Context, id string) (*donation.Streamer, error) {
			return testStreamer(), nil
		},
	}
	router, _ := newTestRouter(t, store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/cctp/burn-params?streamerId=streamer-1&sourceChain=base-sepolia", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var params struct {
		Domain           uint32 `json:"domain"`
		TokenMessengerV2 string `json:"tokenMessengerV2"`
		MintRecipient    string `json:"mintRecipient"`
		HookData         string `json:"hookData"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &params))
	require.Equal(t, uint32(6), params.Domain)
	require.NotEmpty(t, params.TokenMessengerV2)
	require.Equal(t, "0x0000000000000000000000002222222222222222222222222222222222222222", params.MintRecipient)
	require.NotEmpty(t, params.HookData)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cctp/burn-params?sourceChain=base-sepolia", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyClientErrorEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &mockStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations/client-errors",
		strings.NewReader(`{"error": "MetaMask Tx Signature: User denied transaction signature"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Transaction was cancelled.", resp.Message)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/donations/client-errors",
		strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestAlertEndpointEmptyHistory(t *testing.T) {
	router, _ := newTestRouter(t, &mockStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/streamer-1/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alert *donation.AlertEvent `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Alert)
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitnscore/auctiond/internal/domain"
	"github.com/hitnscore/auctiond/internal/service"
)

// stubService returns canned responses so the tests exercise only the HTTP
// contract: routing, decoding, status mapping, and response shapes.
type stubService struct {
	decision domain.BidDecision
	bidErr   error

	highest domain.HighestBid
	bids    []domain.Bid
	cards   []domain.LotCard
	card    domain.LotCard
	cardErr error
	lot     domain.Lot
	lotErr  error
	audit   []service.AuditEntry

	lastBid   service.PlaceBidRequest
	lastAfter string
}

func (s *stubService) PlaceBid(ctx context.Context, req service.PlaceBidRequest, now time.Time) (domain.BidDecision, error) {
	s.lastBid = req
	return s.decision, s.bidErr
}

func (s *stubService) HighestBid(ctx context.Context, auctionID, playerID int64) (domain.HighestBid, error) {
	return s.highest, nil
}

func (s *stubService) BidHistory(ctx context.Context, auctionID, playerID int64, limit int) ([]domain.Bid, error) {
	return s.bids, nil
}

func (s *stubService) LiveLots(ctx context.Context, limit int) ([]domain.LotCard, error) {
	return s.cards, nil
}

func (s *stubService) AuctionLots(ctx context.Context, auctionID int64, opts domain.ListOpts) ([]domain.LotCard, error) {
	return s.cards, nil
}

func (s *stubService) LotCard(ctx context.Context, playerID int64) (domain.LotCard, error) {
	return s.card, s.cardErr
}

func (s *stubService) CloseLot(ctx context.Context, auctionID, playerID int64, now time.Time) (domain.Lot, error) {
	return s.lot, s.lotErr
}

func (s *stubService) AuditTrail(ctx context.Context, lastID string, count int) ([]service.AuditEntry, error) {
	s.lastAfter = lastID
	return s.audit, nil
}

func newTestMux(svc *stubService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAuctionHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auctions/bid", h.PlaceBid)
	mux.HandleFunc("GET /api/auctions/live", h.LiveLots)
	mux.HandleFunc("GET /api/auctions/audit", h.BidAudit)
	mux.HandleFunc("GET /api/auctions/{auctionID}/players", h.AuctionLots)
	mux.HandleFunc("GET /api/auctions/player/{playerID}", h.LotCard)
	mux.HandleFunc("GET /api/auctions/{auctionID}/players/{playerID}/highest", h.HighestBid)
	mux.HandleFunc("GET /api/auctions/{auctionID}/players/{playerID}/bids", h.BidHistory)
	mux.HandleFunc("POST /api/auctions/{auctionID}/players/{playerID}/close", h.CloseLot)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPlaceBidAcceptedResponse(t *testing.T) {
	svc := &stubService{
		decision: domain.Accept(domain.Bid{
			ID: "b-1", AuctionID: 1, PlayerID: 7, TeamID: 3, Amount: 1200, Seq: 4,
		}),
	}
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodPost, "/api/auctions/bid",
		`{"auctionId":1,"playerId":7,"teamId":3,"amount":1200}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["accepted"])
	assert.Equal(t, "b-1", resp["bidId"])
	assert.Equal(t, float64(1200), resp["effectiveAmount"])
	assert.Equal(t, float64(4), resp["seq"])

	assert.Equal(t, service.PlaceBidRequest{AuctionID: 1, PlayerID: 7, TeamID: 3, Amount: 1200}, svc.lastBid)
}

func TestPlaceBidRejectionIsStillHTTP200(t *testing.T) {
	svc := &stubService{decision: domain.RejectTooLow(1100)}
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodPost, "/api/auctions/bid",
		`{"auctionId":1,"playerId":7,"teamId":3,"amount":1050}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["accepted"])
	assert.Equal(t, "bid_too_low", resp["rejectionReason"])
	assert.Equal(t, float64(1100), resp["minAcceptable"])
	assert.NotContains(t, resp, "bidId")
}

func TestPlaceBidMalformedBody(t *testing.T) {
	mux := newTestMux(&stubService{})
	rec := doRequest(t, mux, http.MethodPost, "/api/auctions/bid", `{"auctionId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceBidInfrastructureStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"store unavailable", domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&stubService{bidErr: tc.err})
			rec := doRequest(t, mux, http.MethodPost, "/api/auctions/bid",
				`{"auctionId":1,"playerId":7,"teamId":3,"amount":1000}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHighestBidEmptyLedger(t *testing.T) {
	mux := newTestMux(&stubService{})
	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/1/players/7/highest", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"amount":0,"teamId":null}`, rec.Body.String())
}

func TestBidHistoryResponseShape(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	svc := &stubService{bids: []domain.Bid{
		{ID: "b-2", TeamID: 4, TeamName: "Strikers", Amount: 1200, Seq: 2, AcceptedAt: at},
		{ID: "b-1", TeamID: 3, TeamName: "Titans", Amount: 1000, Seq: 1, AcceptedAt: at},
	}}
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/1/players/7/bids?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Bids []struct {
			BidID        string  `json:"bidId"`
			TeamName     string  `json:"teamName"`
			Amount       int64   `json:"amount"`
			AmountRupees float64 `json:"amountRupees"`
		} `json:"bids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bids, 2)
	assert.Equal(t, "b-2", resp.Bids[0].BidID)
	assert.Equal(t, "Strikers", resp.Bids[0].TeamName)
	assert.Equal(t, int64(1200), resp.Bids[0].Amount)
	assert.InDelta(t, 12.0, resp.Bids[0].AmountRupees, 0.0001)
}

func TestBidHistoryBadPathParam(t *testing.T) {
	mux := newTestMux(&stubService{})
	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/0/players/7/bids", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLotCardNotFound(t *testing.T) {
	mux := newTestMux(&stubService{cardErr: domain.ErrNotFound})
	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/player/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLotCardResponse(t *testing.T) {
	teamID := int64(3)
	svc := &stubService{card: domain.LotCard{
		Lot: domain.Lot{
			AuctionID: 1, PlayerID: 7, ProfileID: 70,
			PlayerName: "R. Sharma", BasePrice: 1000,
			Status: domain.LotStatusOpen,
		},
		Highest:          domain.HighestBid{Amount: 1500, TeamID: &teamID},
		EligibilityRules: "U-19 only",
	}}
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/player/7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(7), resp["id"])
	assert.Equal(t, float64(70), resp["playerProfileId"])
	assert.Equal(t, "R. Sharma", resp["playerName"])
	assert.Equal(t, float64(1500), resp["highestBid"])
	assert.Equal(t, float64(3), resp["highestBidTeam"])
	assert.Equal(t, "U-19 only", resp["eligibilityRules"])
}

func TestLiveLotsWrapsList(t *testing.T) {
	svc := &stubService{cards: []domain.LotCard{
		{Lot: domain.Lot{AuctionID: 1, PlayerID: 7, BasePrice: 1000, Status: domain.LotStatusOpen}},
	}}
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/live?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Lots []json.RawMessage `json:"lots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Lots, 1)
}

func TestBidAuditReplaysStreamEntries(t *testing.T) {
	svc := &stubService{audit: []service.AuditEntry{
		{ID: "1-0", Payload: json.RawMessage(`{"type":"bid_accepted","amount":1000}`)},
		{ID: "2-0", Payload: json.RawMessage(`{"type":"bid_accepted","amount":1100}`)},
	}}
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodGet, "/api/auctions/audit?after=0-0&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0-0", svc.lastAfter)

	var resp struct {
		Events []struct {
			ID    string          `json:"id"`
			Event json.RawMessage `json:"event"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "2-0", resp.Events[1].ID)
	assert.JSONEq(t, `{"type":"bid_accepted","amount":1100}`, string(resp.Events[1].Event))
}

func TestCloseLotStatusMapping(t *testing.T) {
	soldPrice := int64(1500)
	soldTeam := int64(3)

	t.Run("sold", func(t *testing.T) {
		svc := &stubService{lot: domain.Lot{
			AuctionID: 1, PlayerID: 7,
			Status: domain.LotStatusSold, SoldPrice: &soldPrice, SoldTeamID: &soldTeam,
		}}
		mux := newTestMux(svc)

		rec := doRequest(t, mux, http.MethodPost, "/api/auctions/1/players/7/close", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":7,"auctionId":1,"status":"sold","soldPrice":1500,"soldTeamId":3}`, rec.Body.String())
	})

	t.Run("already closed", func(t *testing.T) {
		mux := newTestMux(&stubService{lotErr: domain.ErrLotClosed})
		rec := doRequest(t, mux, http.MethodPost, "/api/auctions/1/players/7/close", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		mux := newTestMux(&stubService{lotErr: domain.ErrNotFound})
		rec := doRequest(t, mux, http.MethodPost, "/api/auctions/99/players/7/close", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitnscore/auctiond/internal/domain"
	"github.com/hitnscore/auctiond/internal/service"
)

// AuctionService defines the methods the auction handler requires from the
// service layer.
type AuctionService interface {
	PlaceBid(ctx context.Context, req service.PlaceBidRequest, now time.Time) (domain.BidDecision, error)
	HighestBid(ctx context.Context, auctionID, playerID int64) (domain.HighestBid, error)
	BidHistory(ctx context.Context, auctionID, playerID int64, limit int) ([]domain.Bid, error)
	LiveLots(ctx context.Context, limit int) ([]domain.LotCard, error)
	AuctionLots(ctx context.Context, auctionID int64, opts domain.ListOpts) ([]domain.LotCard, error)
	LotCard(ctx context.Context, playerID int64) (domain.LotCard, error)
	CloseLot(ctx context.Context, auctionID, playerID int64, now time.Time) (domain.Lot, error)
	AuditTrail(ctx context.Context, lastID string, count int) ([]service.AuditEntry, error)
}

// AuctionHandler serves the auction HTTP endpoints.
type AuctionHandler struct {
	svc    AuctionService
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given service and logger.
func NewAuctionHandler(svc AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		svc:    svc,
		logger: logger,
	}
}

// placeBidRequest is the JSON body for bid submission. Field names are the
// stable contract with dashboard clients.
type placeBidRequest struct {
	AuctionID int64 `json:"auctionId"`
	PlayerID  int64 `json:"playerId"`
	TeamID    int64 `json:"teamId"`
	Amount    int64 `json:"amount"`
}

// placeBidResponse mirrors domain.BidDecision on the wire.
type placeBidResponse struct {
	Accepted        bool   `json:"accepted"`
	BidID           string `json:"bidId,omitempty"`
	EffectiveAmount int64  `json:"effectiveAmount,omitempty"`
	Seq             int64  `json:"seq,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
	MinAcceptable   int64  `json:"minAcceptable,omitempty"`
}

// PlaceBid submits a bid for a lot.
// POST /api/auctions/bid
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	decision, err := h.svc.PlaceBid(r.Context(), service.PlaceBidRequest{
		AuctionID: req.AuctionID,
		PlayerID:  req.PlayerID,
		TeamID:    req.TeamID,
		Amount:    req.Amount,
	}, time.Now())
	if err != nil {
		h.writeServiceError(w, r, "place bid", err)
		return
	}

	resp := placeBidResponse{Accepted: decision.Accepted}
	if decision.Accepted {
		resp.BidID = decision.Bid.ID
		resp.EffectiveAmount = decision.Bid.Amount
		resp.Seq = decision.Bid.Seq
	} else {
		resp.RejectionReason = string(decision.Reason)
		resp.MinAcceptable = decision.MinAcceptable
	}

	writeJSON(w, http.StatusOK, resp)
}

// highestBidResponse is the wire shape of the current highest bid.
type highestBidResponse struct {
	Amount int64  `json:"amount"`
	TeamID *int64 `json:"teamId"`
}

// HighestBid returns the current highest bid for a lot.
// GET /api/auctions/{auctionID}/players/{playerID}/highest
func (h *AuctionHandler) HighestBid(w http.ResponseWriter, r *http.Request) {
	auctionID := pathID(r, "auctionID")
	playerID := pathID(r, "playerID")
	if auctionID == 0 || playerID == 0 {
		writeError(w, http.StatusBadRequest, "auctionID and playerID path parameters must be positive integers")
		return
	}

	top, err := h.svc.HighestBid(r.Context(), auctionID, playerID)
	if err != nil {
		h.writeServiceError(w, r, "highest bid", err)
		return
	}

	writeJSON(w, http.StatusOK, highestBidResponse{
		Amount: top.Amount,
		TeamID: top.TeamID,
	})
}

// bidJSON is the wire shape of one ledger entry. amount is in currency minor
// units; amountRupees is the display value the dashboard renders.
type bidJSON struct {
	BidID        string    `json:"bidId"`
	TeamID       int64     `json:"teamId"`
	TeamName     string    `json:"teamName,omitempty"`
	Amount       int64     `json:"amount"`
	AmountRupees float64   `json:"amountRupees"`
	Seq          int64     `json:"seq"`
	AcceptedAt   time.Time `json:"acceptedAt"`
}

func toBidJSON(bids []domain.Bid) []bidJSON {
	out := make([]bidJSON, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidJSON{
			BidID:        b.ID,
			TeamID:       b.TeamID,
			TeamName:     b.TeamName,
			Amount:       b.Amount,
			AmountRupees: b.AmountRupees(),
			Seq:          b.Seq,
			AcceptedAt:   b.AcceptedAt,
		})
	}
	return out
}

// BidHistory returns the bid ledger for a lot, highest first.
// GET /api/auctions/{auctionID}/players/{playerID}/bids?limit=20
func (h *AuctionHandler) BidHistory(w http.ResponseWriter, r *http.Request) {
	auctionID := pathID(r, "auctionID")
	playerID := pathID(r, "playerID")
	if auctionID == 0 || playerID == 0 {
		writeError(w, http.StatusBadRequest, "auctionID and playerID path parameters must be positive integers")
		return
	}

	bids, err := h.svc.BidHistory(r.Context(), auctionID, playerID, queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, r, "bid history", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bids": toBidJSON(bids)})
}

// lotCardJSON is the dashboard card wire shape.
type lotCardJSON struct {
	ID               int64      `json:"id"`
	AuctionID        int64      `json:"auctionId"`
	PlayerProfileID  int64      `json:"playerProfileId"`
	PlayerName       string     `json:"playerName,omitempty"`
	PlayerPhoto      string     `json:"playerPhoto,omitempty"`
	BasePrice        int64      `json:"basePrice"`
	Status           string     `json:"status"`
	HighestBid       int64      `json:"highestBid"`
	HighestBidTeam   *int64     `json:"highestBidTeam"`
	Bids             []bidJSON  `json:"bids,omitempty"`
	EndTime          *time.Time `json:"endTime"`
	SoldPrice        *int64     `json:"soldPrice,omitempty"`
	SoldTeamID       *int64     `json:"soldTeamId,omitempty"`
	EligibilityRules string     `json:"eligibilityRules,omitempty"`
}

func toLotCardJSON(c domain.LotCard) lotCardJSON {
	out := lotCardJSON{
		ID:               c.PlayerID,
		AuctionID:        c.AuctionID,
		PlayerProfileID:  c.ProfileID,
		PlayerName:       c.PlayerName,
		PlayerPhoto:      c.PlayerPhoto,
		BasePrice:        c.BasePrice,
		Status:           string(c.Status),
		HighestBid:       c.Highest.Amount,
		HighestBidTeam:   c.Highest.TeamID,
		EndTime:          c.EndTime,
		SoldPrice:        c.SoldPrice,
		SoldTeamID:       c.SoldTeamID,
		EligibilityRules: c.EligibilityRules,
	}
	if len(c.Bids) > 0 {
		out.Bids = toBidJSON(c.Bids)
	}
	return out
}

// LiveLots returns cards for lots currently open for bidding.
// GET /api/auctions/live?limit=10
func (h *AuctionHandler) LiveLots(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.LiveLots(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, r, "live lots", err)
		return
	}

	out := make([]lotCardJSON, 0, len(cards))
	for _, c := range cards {
		out = append(out, toLotCardJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"lots": out})
}

// AuctionLots returns cards for every lot of one auction.
// GET /api/auctions/{auctionID}/players?limit=50&offset=0
func (h *AuctionHandler) AuctionLots(w http.ResponseWriter, r *http.Request) {
	auctionID := pathID(r, "auctionID")
	if auctionID == 0 {
		writeError(w, http.StatusBadRequest, "auctionID path parameter must be a positive integer")
		return
	}

	opts := domain.ListOpts{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	cards, err := h.svc.AuctionLots(r.Context(), auctionID, opts)
	if err != nil {
		h.writeServiceError(w, r, "auction lots", err)
		return
	}

	out := make([]lotCardJSON, 0, len(cards))
	for _, c := range cards {
		out = append(out, toLotCardJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"lots": out})
}

// LotCard returns the card for one lot.
// GET /api/auctions/player/{playerID}
func (h *AuctionHandler) LotCard(w http.ResponseWriter, r *http.Request) {
	playerID := pathID(r, "playerID")
	if playerID == 0 {
		writeError(w, http.StatusBadRequest, "playerID path parameter must be a positive integer")
		return
	}

	card, err := h.svc.LotCard(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "player not found in auction")
			return
		}
		h.writeServiceError(w, r, "lot card", err)
		return
	}

	writeJSON(w, http.StatusOK, toLotCardJSON(card))
}

// closeLotResponse reports the outcome recorded for a closed lot.
type closeLotResponse struct {
	ID         int64  `json:"id"`
	AuctionID  int64  `json:"auctionId"`
	Status     string `json:"status"`
	SoldPrice  *int64 `json:"soldPrice,omitempty"`
	SoldTeamID *int64 `json:"soldTeamId,omitempty"`
}

// CloseLot finalizes a lot: sold to the highest bidder or unsold.
// POST /api/auctions/{auctionID}/players/{playerID}/close
func (h *AuctionHandler) CloseLot(w http.ResponseWriter, r *http.Request) {
	auctionID := pathID(r, "auctionID")
	playerID := pathID(r, "playerID")
	if auctionID == 0 || playerID == 0 {
		writeError(w, http.StatusBadRequest, "auctionID and playerID path parameters must be positive integers")
		return
	}

	lot, err := h.svc.CloseLot(r.Context(), auctionID, playerID, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lot not found")
			return
		}
		if errors.Is(err, domain.ErrLotClosed) {
			writeError(w, http.StatusConflict, "lot already closed")
			return
		}
		h.writeServiceError(w, r, "close lot", err)
		return
	}

	writeJSON(w, http.StatusOK, closeLotResponse{
		ID:         lot.PlayerID,
		AuctionID:  lot.AuctionID,
		Status:     string(lot.Status),
		SoldPrice:  lot.SoldPrice,
		SoldTeamID: lot.SoldTeamID,
	})
}

// auditEntryJSON is one replayable entry of the accepted-bid audit stream.
type auditEntryJSON struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// BidAudit replays accepted-bid events from the durable audit stream. The
// "after" cursor is the id of the last entry the client has seen.
// GET /api/auctions/audit?after=<stream id>&limit=20
func (h *AuctionHandler) BidAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.AuditTrail(r.Context(), r.URL.Query().Get("after"), queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, r, "bid audit", err)
		return
	}

	out := make([]auditEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryJSON{ID: e.ID, Event: e.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// writeServiceError maps infrastructure failures to HTTP statuses: throttled
// requests get 429, store outages 503 so clients retry with backoff.
func (h *AuctionHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, domain.ErrRateLimited) {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)

	if errors.Is(err, domain.ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry later")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

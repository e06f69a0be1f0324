// Package service holds the auction business logic. AuctionService is the
// single authority deciding whether a proposed bid becomes a ledger record.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitnscore/auctiond/internal/domain"
)

const (
	// lockRetryDelay is the pause between attempts to acquire a contended
	// per-lot lock.
	lockRetryDelay = 25 * time.Millisecond

	// BidChannel and LotChannel are the pub/sub channels carrying live feed
	// events for dashboard clients.
	BidChannel = "ch:bid"
	LotChannel = "ch:lot"

	// BidStream is the durable audit stream of accepted bids.
	BidStream = "stream:bids"
)

// Config holds the engine parameters. Zero fields fall back to the documented
// defaults.
type Config struct {
	MinIncrement    int64 // currency minor units
	LockTTL         time.Duration
	LockAttempts    int
	AppendAttempts  int
	TeamBidLimit    int // 0 disables the per-team throttle
	TeamBidWindow   time.Duration
	HistoryLimit    int
	HistoryMaxLimit int
	LiveLimit       int
	LiveMaxLimit    int
}

func (c Config) withDefaults() Config {
	if c.MinIncrement <= 0 {
		c.MinIncrement = 100
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Second
	}
	if c.LockAttempts <= 0 {
		c.LockAttempts = 20
	}
	if c.AppendAttempts <= 0 {
		c.AppendAttempts = 3
	}
	if c.TeamBidWindow <= 0 {
		c.TeamBidWindow = time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.HistoryMaxLimit <= 0 {
		c.HistoryMaxLimit = 50
	}
	if c.LiveLimit <= 0 {
		c.LiveLimit = 10
	}
	if c.LiveMaxLimit <= 0 {
		c.LiveMaxLimit = 20
	}
	return c
}

// AuctionService evaluates and commits bids, and serves the dashboard read
// paths. The read-highest, validate, append sequence for one lot runs under a
// per-lot lock; the ledger's conditional append is the backstop should the
// lock expire mid-flight.
type AuctionService struct {
	ledger   domain.BidLedger
	registry domain.AuctionRegistry
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	blobs    domain.BlobWriter
	cfg      Config
	logger   *slog.Logger
}

// NewAuctionService creates an AuctionService with the required dependencies.
func NewAuctionService(
	ledger domain.BidLedger,
	registry domain.AuctionRegistry,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		ledger:   ledger,
		registry: registry,
		locks:    locks,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "auction_service")),
	}
}

// WithLimiter attaches a per-team bid throttle.
func (s *AuctionService) WithLimiter(limiter domain.RateLimiter) *AuctionService {
	s.limiter = limiter
	return s
}

// WithSignalBus attaches the live feed and audit stream publisher.
func (s *AuctionService) WithSignalBus(bus domain.SignalBus) *AuctionService {
	s.bus = bus
	return s
}

// WithArchive attaches the closed-lot ledger snapshot writer.
func (s *AuctionService) WithArchive(blobs domain.BlobWriter) *AuctionService {
	s.blobs = blobs
	return s
}

// PlaceBidRequest carries one proposed bid.
type PlaceBidRequest struct {
	AuctionID int64
	PlayerID  int64
	TeamID    int64
	Amount    int64 // currency minor units
}

// PlaceBid evaluates a proposed bid at the given instant and, when every
// precondition passes, appends it to the ledger and returns the accepted
// decision. Business rejections come back inside the decision with a nil
// error; a non-nil error always wraps domain.ErrStoreUnavailable (or
// domain.ErrRateLimited) and means nothing was written.
//
// Registry lookups run before the per-lot critical section: they are
// read-only and do not depend on the mutable bid history.
func (s *AuctionService) PlaceBid(ctx context.Context, req PlaceBidRequest, now time.Time) (domain.BidDecision, error) {
	if req.AuctionID <= 0 || req.PlayerID <= 0 || req.TeamID <= 0 || req.Amount <= 0 {
		return domain.Reject(domain.RejectionInvalidArgument), nil
	}

	lot, err := s.registry.GetLot(ctx, req.AuctionID, req.PlayerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reject(domain.RejectionLotNotFound), nil
		}
		return domain.BidDecision{}, storeErr("get lot", err)
	}

	exists, err := s.registry.TeamExists(ctx, req.TeamID)
	if err != nil {
		return domain.BidDecision{}, storeErr("team lookup", err)
	}
	if !exists {
		return domain.Reject(domain.RejectionTeamNotFound), nil
	}

	if !lot.BiddingOpenAt(now) {
		return domain.Reject(domain.RejectionBiddingClosed), nil
	}

	if s.limiter != nil && s.cfg.TeamBidLimit > 0 {
		key := fmt.Sprintf("bids:team:%d", req.TeamID)
		allowed, err := s.limiter.Allow(ctx, key, s.cfg.TeamBidLimit, s.cfg.TeamBidWindow)
		if err != nil {
			// Fail open: a broken limiter must not block the auction.
			s.logger.WarnContext(ctx, "bid throttle unavailable",
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.BidDecision{}, fmt.Errorf("service: team %d bid throttle: %w", req.TeamID, domain.ErrRateLimited)
		}
	}

	unlock, err := s.acquireLotLock(ctx, req.AuctionID, req.PlayerID)
	if err != nil {
		return domain.BidDecision{}, err
	}
	defer unlock()

	for attempt := 0; attempt < s.cfg.AppendAttempts; attempt++ {
		highest, err := s.ledger.CurrentHighest(ctx, req.AuctionID, req.PlayerID)
		if err != nil {
			return domain.BidDecision{}, storeErr("read highest", err)
		}

		minAcceptable := lot.BasePrice
		if next := highest.Amount + s.cfg.MinIncrement; next > minAcceptable {
			minAcceptable = next
		}
		if req.Amount < minAcceptable {
			return domain.RejectTooLow(minAcceptable), nil
		}

		bid := domain.Bid{
			ID:         uuid.New().String(),
			AuctionID:  req.AuctionID,
			PlayerID:   req.PlayerID,
			TeamID:     req.TeamID,
			Amount:     req.Amount,
			AcceptedAt: now.UTC(),
		}

		accepted, err := s.ledger.AppendBid(ctx, bid, highest.Amount)
		if err != nil {
			if errors.Is(err, domain.ErrLedgerConflict) {
				// Someone slipped past the lock (e.g. it expired). Re-read
				// and re-validate against the new head.
				s.logger.WarnContext(ctx, "ledger conflict, revalidating",
					slog.Int64("auction_id", req.AuctionID),
					slog.Int64("player_id", req.PlayerID),
					slog.Int("attempt", attempt+1),
				)
				continue
			}
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Reject(domain.RejectionLotNotFound), nil
			}
			return domain.BidDecision{}, storeErr("append bid", err)
		}

		s.publishBidAccepted(ctx, accepted)

		s.logger.InfoContext(ctx, "bid accepted",
			slog.String("bid_id", accepted.ID),
			slog.Int64("auction_id", accepted.AuctionID),
			slog.Int64("player_id", accepted.PlayerID),
			slog.Int64("team_id", accepted.TeamID),
			slog.Int64("amount", accepted.Amount),
			slog.Int64("seq", accepted.Seq),
		)
		return domain.Accept(accepted), nil
	}

	return domain.BidDecision{}, fmt.Errorf("service: lot %d/%d append retries exhausted: %w",
		req.AuctionID, req.PlayerID, domain.ErrStoreUnavailable)
}

// HighestBid returns the current highest bid for a lot. Pure read: a lot with
// no bids yields a zero HighestBid with a nil team.
func (s *AuctionService) HighestBid(ctx context.Context, auctionID, playerID int64) (domain.HighestBid, error) {
	top, err := s.ledger.CurrentHighest(ctx, auctionID, playerID)
	if err != nil {
		return domain.HighestBid{}, storeErr("read highest", err)
	}
	return top, nil
}

// BidHistory returns bids for a lot descending by (amount, seq). A
// non-positive limit uses the default; anything above the maximum is capped.
func (s *AuctionService) BidHistory(ctx context.Context, auctionID, playerID int64, limit int) ([]domain.Bid, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}

	bids, err := s.ledger.ListBids(ctx, auctionID, playerID, limit)
	if err != nil {
		return nil, storeErr("list bids", err)
	}
	return bids, nil
}

// AuditEntry pairs a durable stream id with the bid event recorded at
// acceptance. The id is the replay cursor: pass it back as lastID to resume
// reading after that entry.
type AuditEntry struct {
	ID      string
	Payload json.RawMessage
}

// AuditTrail reads accepted-bid events from the durable audit stream after
// lastID ("" starts from the beginning). Returns nil when no signal bus is
// attached.
func (s *AuctionService) AuditTrail(ctx context.Context, lastID string, count int) ([]AuditEntry, error) {
	if s.bus == nil {
		return nil, nil
	}
	if count <= 0 {
		count = s.cfg.HistoryLimit
	}
	if count > s.cfg.HistoryMaxLimit {
		count = s.cfg.HistoryMaxLimit
	}

	msgs, err := s.bus.StreamRead(ctx, BidStream, lastID, count)
	if err != nil {
		return nil, storeErr("read audit stream", err)
	}

	entries := make([]AuditEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, AuditEntry{ID: m.ID, Payload: json.RawMessage(m.Payload)})
	}
	return entries, nil
}

// LiveLots returns dashboard cards for lots of live, not-yet-ended auctions.
func (s *AuctionService) LiveLots(ctx context.Context, limit int) ([]domain.LotCard, error) {
	if limit <= 0 {
		limit = s.cfg.LiveLimit
	}
	if limit > s.cfg.LiveMaxLimit {
		limit = s.cfg.LiveMaxLimit
	}

	lots, err := s.registry.ListLiveLots(ctx, limit)
	if err != nil {
		return nil, storeErr("list live lots", err)
	}

	return s.buildCards(ctx, lots, false)
}

// AuctionLots returns cards for every lot of one auction, including recent
// bids per lot.
func (s *AuctionService) AuctionLots(ctx context.Context, auctionID int64, opts domain.ListOpts) ([]domain.LotCard, error) {
	if opts.Limit <= 0 || opts.Limit > s.cfg.HistoryMaxLimit {
		opts.Limit = s.cfg.HistoryMaxLimit
	}

	lots, err := s.registry.ListLots(ctx, auctionID, opts)
	if err != nil {
		return nil, storeErr("list lots", err)
	}

	return s.buildCards(ctx, lots, true)
}

// LotCard returns the dashboard card for one lot, with its recent bids.
func (s *AuctionService) LotCard(ctx context.Context, playerID int64) (domain.LotCard, error) {
	lot, err := s.registry.GetLotByPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.LotCard{}, domain.ErrNotFound
		}
		return domain.LotCard{}, storeErr("get lot", err)
	}

	cards, err := s.buildCards(ctx, []domain.Lot{lot}, true)
	if err != nil {
		return domain.LotCard{}, err
	}
	return cards[0], nil
}

// CloseLot records the terminal outcome of a lot: sold to the highest bidder
// at the highest amount, or unsold when the ledger is empty. The per-lot lock
// serializes the close against in-flight bids. When an archive writer is
// attached, the full ledger snapshot is uploaded best-effort.
func (s *AuctionService) CloseLot(ctx context.Context, auctionID, playerID int64, now time.Time) (domain.Lot, error) {
	lot, err := s.registry.GetLot(ctx, auctionID, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Lot{}, domain.ErrNotFound
		}
		return domain.Lot{}, storeErr("get lot", err)
	}
	if lot.Status != domain.LotStatusOpen {
		return domain.Lot{}, domain.ErrLotClosed
	}

	unlock, err := s.acquireLotLock(ctx, auctionID, playerID)
	if err != nil {
		return domain.Lot{}, err
	}
	defer unlock()

	highest, err := s.ledger.CurrentHighest(ctx, auctionID, playerID)
	if err != nil {
		return domain.Lot{}, storeErr("read highest", err)
	}

	status := domain.LotStatusUnsold
	var soldPrice, soldTeamID *int64
	if highest.Amount > 0 {
		status = domain.LotStatusSold
		soldPrice = &highest.Amount
		soldTeamID = highest.TeamID
	}

	if err := s.registry.CloseLot(ctx, auctionID, playerID, status, soldPrice, soldTeamID); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrLotClosed) {
			return domain.Lot{}, err
		}
		return domain.Lot{}, storeErr("close lot", err)
	}

	lot.Status = status
	lot.SoldPrice = soldPrice
	lot.SoldTeamID = soldTeamID

	s.publishLotClosed(ctx, lot, now)
	s.archiveLedger(ctx, lot, now)

	s.logger.InfoContext(ctx, "lot closed",
		slog.Int64("auction_id", auctionID),
		slog.Int64("player_id", playerID),
		slog.String("status", string(status)),
	)
	return lot, nil
}

// buildCards decorates lots with highest bid, eligibility rules, and
// optionally the recent bid list.
func (s *AuctionService) buildCards(ctx context.Context, lots []domain.Lot, withBids bool) ([]domain.LotCard, error) {
	rules, err := s.registry.EligibilityRules(ctx)
	if err != nil {
		return nil, storeErr("eligibility rules", err)
	}

	cards := make([]domain.LotCard, 0, len(lots))
	for _, lot := range lots {
		top, err := s.ledger.CurrentHighest(ctx, lot.AuctionID, lot.PlayerID)
		if err != nil {
			return nil, storeErr("read highest", err)
		}

		card := domain.LotCard{
			Lot:              lot,
			Highest:          top,
			EligibilityRules: rules,
		}

		if withBids {
			bids, err := s.ledger.ListBids(ctx, lot.AuctionID, lot.PlayerID, s.cfg.HistoryLimit)
			if err != nil {
				return nil, storeErr("list bids", err)
			}
			card.Bids = bids
		}

		cards = append(cards, card)
	}
	return cards, nil
}

// acquireLotLock obtains the per-lot lock, retrying a bounded number of times
// while the lot is contended.
func (s *AuctionService) acquireLotLock(ctx context.Context, auctionID, playerID int64) (func(), error) {
	key := fmt.Sprintf("lot:%d:%d", auctionID, playerID)

	for attempt := 0; attempt < s.cfg.LockAttempts; attempt++ {
		unlock, err := s.locks.Acquire(ctx, key, s.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, storeErr("acquire lot lock", err)
		}

		timer := time.NewTimer(lockRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("service: lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("service: lock %s contended: %w", key, domain.ErrStoreUnavailable)
}

// bidEvent is the wire shape published for accepted bids.
type bidEvent struct {
	Type       string    `json:"type"`
	BidID      string    `json:"bidId"`
	AuctionID  int64     `json:"auctionId"`
	PlayerID   int64     `json:"playerId"`
	TeamID     int64     `json:"teamId"`
	Amount     int64     `json:"amount"`
	Seq        int64     `json:"seq"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

func (s *AuctionService) publishBidAccepted(ctx context.Context, b domain.Bid) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(bidEvent{
		Type:       "bid_accepted",
		BidID:      b.ID,
		AuctionID:  b.AuctionID,
		PlayerID:   b.PlayerID,
		TeamID:     b.TeamID,
		Amount:     b.Amount,
		Seq:        b.Seq,
		AcceptedAt: b.AcceptedAt,
	})
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, BidChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish bid event failed", slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, BidStream, payload); err != nil {
		s.logger.WarnContext(ctx, "append bid audit stream failed", slog.String("error", err.Error()))
	}
}

// lotEvent is the wire shape published for closed lots.
type lotEvent struct {
	Type       string `json:"type"`
	AuctionID  int64  `json:"auctionId"`
	PlayerID   int64  `json:"playerId"`
	Status     string `json:"status"`
	SoldPrice  *int64 `json:"soldPrice,omitempty"`
	SoldTeamID *int64 `json:"soldTeamId,omitempty"`
	ClosedAt   string `json:"closedAt"`
}

func (s *AuctionService) publishLotClosed(ctx context.Context, lot domain.Lot, now time.Time) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(lotEvent{
		Type:       "lot_closed",
		AuctionID:  lot.AuctionID,
		PlayerID:   lot.PlayerID,
		Status:     string(lot.Status),
		SoldPrice:  lot.SoldPrice,
		SoldTeamID: lot.SoldTeamID,
		ClosedAt:   now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, LotChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish lot event failed", slog.String("error", err.Error()))
	}
}

// ledgerSnapshot is the archived document for a closed lot.
type ledgerSnapshot struct {
	AuctionID  int64        `json:"auctionId"`
	PlayerID   int64        `json:"playerId"`
	Status     string       `json:"status"`
	BasePrice  int64        `json:"basePrice"`
	SoldPrice  *int64       `json:"soldPrice,omitempty"`
	SoldTeamID *int64       `json:"soldTeamId,omitempty"`
	ClosedAt   time.Time    `json:"closedAt"`
	Bids       []domain.Bid `json:"bids"`
}

// archiveLedger uploads the full bid ledger of a closed lot. Best effort: a
// failed upload is logged and does not undo the close.
func (s *AuctionService) archiveLedger(ctx context.Context, lot domain.Lot, now time.Time) {
	if s.blobs == nil {
		return
	}

	bids, err := s.ledger.ListBids(ctx, lot.AuctionID, lot.PlayerID, 0)
	if err != nil {
		s.logger.WarnContext(ctx, "archive: list bids failed", slog.String("error", err.Error()))
		return
	}

	doc, err := json.Marshal(ledgerSnapshot{
		AuctionID:  lot.AuctionID,
		PlayerID:   lot.PlayerID,
		Status:     string(lot.Status),
		BasePrice:  lot.BasePrice,
		SoldPrice:  lot.SoldPrice,
		SoldTeamID: lot.SoldTeamID,
		ClosedAt:   now.UTC(),
		Bids:       bids,
	})
	if err != nil {
		return
	}

	path := fmt.Sprintf("ledgers/%d/%d.json", lot.AuctionID, lot.PlayerID)
	if err := s.blobs.Put(ctx, path, bytes.NewReader(doc), "application/json"); err != nil {
		s.logger.WarnContext(ctx, "archive: upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// storeErr tags an infrastructure failure so callers can match
// domain.ErrStoreUnavailable while keeping the cause in the chain.
func storeErr(op string, err error) error {
	return fmt.Errorf("service: %s: %w", op, errors.Join(domain.ErrStoreUnavailable, err))
}

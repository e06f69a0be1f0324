package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AuctionRegistry reads auction, lot, and team metadata. All methods are
// read-only except CloseLot, which performs the one forward-only status
// transition the engine is allowed to make.
type AuctionRegistry interface {
	// GetLot returns the lot identified by (auctionID, playerID) with the
	// auction-level EndTime attached. Returns ErrNotFound when no such lot
	// exists or the lot belongs to a different auction.
	GetLot(ctx context.Context, auctionID, playerID int64) (Lot, error)

	// GetLotByPlayer returns the lot for a player id alone, used by the
	// dashboard card endpoint where the auction id is not in the path.
	GetLotByPlayer(ctx context.Context, playerID int64) (Lot, error)

	// TeamExists reports whether a team is registered on the platform.
	TeamExists(ctx context.Context, teamID int64) (bool, error)

	// ListLots returns the lots of one auction in lot-id order.
	ListLots(ctx context.Context, auctionID int64, opts ListOpts) ([]Lot, error)

	// ListLiveLots returns lots of live, not-yet-ended auctions ordered by
	// soonest end time.
	ListLiveLots(ctx context.Context, limit int) ([]Lot, error)

	// CloseLot records the terminal outcome of a lot. soldPrice and
	// soldTeamID are nil for an unsold close. Returns ErrLotClosed when the
	// lot already left the open status, ErrNotFound when it does not exist.
	CloseLot(ctx context.Context, auctionID, playerID int64, status LotStatus, soldPrice, soldTeamID *int64) error

	// EligibilityRules returns the auction eligibility rules text shown on
	// lot cards, or empty when none is published.
	EligibilityRules(ctx context.Context) (string, error)
}

// BidLedger is the append-only store of accepted bids. It is the only mutable
// shared resource of the engine and is never written outside AppendBid.
type BidLedger interface {
	// CurrentHighest returns the highest bid for a lot, ties broken by the
	// latest sequence number. A lot with no bids yields a zero HighestBid.
	CurrentHighest(ctx context.Context, auctionID, playerID int64) (HighestBid, error)

	// AppendBid persists an accepted bid, assigning its sequence number
	// atomically. prevHighest is the highest amount the engine validated
	// against; if the ledger's highest has moved past it the append fails
	// with ErrLedgerConflict and nothing is written, so the engine can
	// re-read and re-validate.
	AppendBid(ctx context.Context, bid Bid, prevHighest int64) (Bid, error)

	// ListBids returns bids for a lot ordered descending by (amount, seq).
	// A non-positive limit returns the full ledger.
	ListBids(ctx context.Context, auctionID, playerID int64, limit int) ([]Bid, error)
}

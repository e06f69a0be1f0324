package domain

import "time"

// Bid is one accepted monetary offer from a team for a lot. Bids are
// append-only: once written to the ledger they are never mutated or deleted.
// Seq is assigned by the ledger at acceptance and breaks ties between bids
// with equal amounts or timestamps.
type Bid struct {
	ID         string
	AuctionID  int64
	PlayerID   int64
	TeamID     int64
	TeamName   string
	Amount     int64 // currency minor units
	Seq        int64
	AcceptedAt time.Time
}

// AmountRupees returns the display amount from fixed-point minor units.
func (b Bid) AmountRupees() float64 {
	return float64(b.Amount) / 100
}

// HighestBid is the top of the ledger for one lot. TeamID is nil when the
// lot has no bids yet, in which case Amount is zero.
type HighestBid struct {
	Amount int64
	TeamID *int64
}

// RejectionKind names the business reason a proposed bid was not accepted.
// These are decision outcomes, not errors: infrastructure failures travel as
// Go errors instead.
type RejectionKind string

const (
	RejectionInvalidArgument RejectionKind = "invalid_argument"
	RejectionLotNotFound     RejectionKind = "lot_not_found"
	RejectionTeamNotFound    RejectionKind = "team_not_found"
	RejectionBiddingClosed   RejectionKind = "bidding_closed"
	RejectionBidTooLow       RejectionKind = "bid_too_low"
)

// BidDecision is the outcome of evaluating one proposed bid. When Accepted is
// true, Bid holds the persisted record and NewHighest its amount. When the
// rejection is RejectionBidTooLow, MinAcceptable carries the smallest amount
// that would have been accepted so the caller can resubmit.
type BidDecision struct {
	Accepted      bool
	Reason        RejectionKind
	Bid           *Bid
	MinAcceptable int64
	NewHighest    int64
}

// Reject builds a rejected decision with the given reason.
func Reject(reason RejectionKind) BidDecision {
	return BidDecision{Reason: reason}
}

// RejectTooLow builds a bid-too-low decision carrying the minimum acceptable
// amount hint.
func RejectTooLow(minAcceptable int64) BidDecision {
	return BidDecision{Reason: RejectionBidTooLow, MinAcceptable: minAcceptable}
}

// Accept builds an accepted decision wrapping the persisted bid.
func Accept(b Bid) BidDecision {
	return BidDecision{Accepted: true, Bid: &b, NewHighest: b.Amount}
}

// Package domain defines the core types of the auction bidding service:
// lots, bids, acceptance decisions, and the store and infrastructure
// interfaces implemented by the postgres, redis, and s3 adapters.
package domain

import "time"

// LotStatus tracks the lifecycle of an auction lot. Transitions only move
// forward: open -> {sold, unsold, closed}, never back to open.
type LotStatus string

const (
	LotStatusOpen   LotStatus = "open"
	LotStatusSold   LotStatus = "sold"
	LotStatusUnsold LotStatus = "unsold"
	LotStatusClosed LotStatus = "closed"
)

// Terminal reports whether the status is one bidding can never resume from.
func (s LotStatus) Terminal() bool {
	switch s {
	case LotStatusSold, LotStatusUnsold, LotStatusClosed:
		return true
	}
	return false
}

// Lot is one player up for auction within one auction run. EndTime comes from
// the auction run; a nil EndTime means the lot stays open until explicitly
// closed. SoldPrice and SoldTeamID are set only when the lot is closed as sold.
type Lot struct {
	AuctionID   int64
	PlayerID    int64 // auction_players row id, the lot identity
	ProfileID   int64 // platform user id of the player
	PlayerName  string
	PlayerPhoto string
	BasePrice   int64 // currency minor units
	Status      LotStatus
	EndTime     *time.Time
	SoldPrice   *int64
	SoldTeamID  *int64
}

// BiddingOpenAt reports whether the lot accepts bids at the given instant.
// A lot in any terminal status never accepts bids, regardless of EndTime.
func (l Lot) BiddingOpenAt(now time.Time) bool {
	if l.Status != LotStatusOpen {
		return false
	}
	if l.EndTime != nil && now.After(*l.EndTime) {
		return false
	}
	return true
}

// LotCard is a dashboard-facing view of a lot: the lot itself plus the
// current highest bid, the recent bid list, and the eligibility rules text.
type LotCard struct {
	Lot
	Highest          HighestBid
	Bids             []Bid
	EligibilityRules string
}

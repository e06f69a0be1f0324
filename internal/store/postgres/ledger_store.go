package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitnscore/auctiond/internal/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// LedgerStore implements domain.BidLedger using PostgreSQL. Appends are
// conditional: the transaction locks the lot row, recomputes the highest bid,
// and refuses to write when it no longer matches what the engine validated
// against.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// CurrentHighest returns the highest bid for a lot, ties broken by the latest
// sequence number. A lot with no bids yields a zero HighestBid.
func (s *LedgerStore) CurrentHighest(ctx context.Context, auctionID, playerID int64) (domain.HighestBid, error) {
	var top domain.HighestBid
	var teamID int64

	err := s.pool.QueryRow(ctx,
		`SELECT bid_amount, team_id FROM auction_bids
		 WHERE auction_id = $1 AND player_id = $2
		 ORDER BY bid_amount DESC, seq_no DESC
		 LIMIT 1`, auctionID, playerID,
	).Scan(&top.Amount, &teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HighestBid{}, nil
		}
		return domain.HighestBid{}, fmt.Errorf("postgres: current highest for lot %d/%d: %w", auctionID, playerID, err)
	}

	top.TeamID = &teamID
	return top, nil
}

// AppendBid persists an accepted bid inside a transaction that serializes
// appends per lot. The lot row is locked FOR UPDATE, the highest bid is
// recomputed under that lock, and the write is abandoned with
// domain.ErrLedgerConflict when the highest has moved past prevHighest. The
// sequence number is max+1 for the lot; the unique (player_id, seq_no) index
// is the backstop should anything slip past the row lock.
func (s *LedgerStore) AppendBid(ctx context.Context, bid domain.Bid, prevHighest int64) (domain.Bid, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the lot row so concurrent appends for the same lot queue here.
	var lotID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM auction_players WHERE id = $1 AND auction_id = $2 FOR UPDATE`,
		bid.PlayerID, bid.AuctionID,
	).Scan(&lotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: lock lot %d/%d: %w", bid.AuctionID, bid.PlayerID, err)
	}

	var highest, maxSeq int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(bid_amount), 0), COALESCE(MAX(seq_no), 0)
		 FROM auction_bids WHERE auction_id = $1 AND player_id = $2`,
		bid.AuctionID, bid.PlayerID,
	).Scan(&highest, &maxSeq)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: read ledger head %d/%d: %w", bid.AuctionID, bid.PlayerID, err)
	}

	if highest != prevHighest {
		return domain.Bid{}, domain.ErrLedgerConflict
	}

	bid.Seq = maxSeq + 1
	_, err = tx.Exec(ctx,
		`INSERT INTO auction_bids (id, auction_id, player_id, team_id, bid_amount, seq_no, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bid.ID, bid.AuctionID, bid.PlayerID, bid.TeamID, bid.Amount, bid.Seq, bid.AcceptedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Bid{}, domain.ErrLedgerConflict
		}
		return domain.Bid{}, fmt.Errorf("postgres: append bid %s: %w", bid.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: commit append %s: %w", bid.ID, err)
	}
	return bid, nil
}

// ListBids returns bids for a lot descending by (amount, seq), joined with
// team names for display. A non-positive limit returns the full ledger.
func (s *LedgerStore) ListBids(ctx context.Context, auctionID, playerID int64, limit int) ([]domain.Bid, error) {
	query := `SELECT b.id, b.auction_id, b.player_id, b.team_id, COALESCE(t.name, ''), b.bid_amount, b.seq_no, b.created_at
		 FROM auction_bids b
		 LEFT JOIN teams t ON t.id = b.team_id
		 WHERE b.auction_id = $1 AND b.player_id = $2
		 ORDER BY b.bid_amount DESC, b.seq_no DESC`
	args := []any{auctionID, playerID}

	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for lot %d/%d: %w", auctionID, playerID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.PlayerID, &b.TeamID, &b.TeamName, &b.Amount, &b.Seq, &b.AcceptedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bids: %w", err)
	}
	return bids, nil
}

// Compile-time interface check.
var _ domain.BidLedger = (*LedgerStore)(nil)

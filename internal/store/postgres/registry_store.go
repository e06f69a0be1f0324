package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitnscore/auctiond/internal/domain"
)

// eligibilitySlug is the cms_pages slug holding the auction eligibility text.
const eligibilitySlug = "auction-eligibility"

// RegistryStore implements domain.AuctionRegistry using PostgreSQL.
type RegistryStore struct {
	pool *pgxpool.Pool
}

// NewRegistryStore creates a RegistryStore backed by the given connection pool.
func NewRegistryStore(pool *pgxpool.Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

// lotSelectCols lists the columns selected when reading lots. end_time comes
// from the auction run, not the lot row.
const lotSelectCols = `ap.auction_id, ap.id, ap.user_id, ap.player_name, ap.player_photo,
	ap.base_price, ap.status, a.end_time, ap.sold_price, ap.sold_team_id`

func scanLotFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Lot, error) {
	var l domain.Lot
	var status string

	err := scanner.Scan(
		&l.AuctionID, &l.PlayerID, &l.ProfileID, &l.PlayerName, &l.PlayerPhoto,
		&l.BasePrice, &status, &l.EndTime, &l.SoldPrice, &l.SoldTeamID,
	)
	if err != nil {
		return domain.Lot{}, err
	}

	l.Status = domain.LotStatus(status)
	return l, nil
}

// GetLot returns the lot identified by (auctionID, playerID). A lot that
// exists under a different auction id is reported as ErrNotFound, matching
// the referential check the engine needs.
func (s *RegistryStore) GetLot(ctx context.Context, auctionID, playerID int64) (domain.Lot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lotSelectCols+`
		 FROM auction_players ap
		 JOIN player_auctions a ON a.id = ap.auction_id
		 WHERE ap.id = $1 AND ap.auction_id = $2`, playerID, auctionID)

	l, err := scanLotFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lot{}, domain.ErrNotFound
		}
		return domain.Lot{}, fmt.Errorf("postgres: get lot %d/%d: %w", auctionID, playerID, err)
	}
	return l, nil
}

// GetLotByPlayer returns the lot for a player id alone.
func (s *RegistryStore) GetLotByPlayer(ctx context.Context, playerID int64) (domain.Lot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lotSelectCols+`
		 FROM auction_players ap
		 JOIN player_auctions a ON a.id = ap.auction_id
		 WHERE ap.id = $1`, playerID)

	l, err := scanLotFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lot{}, domain.ErrNotFound
		}
		return domain.Lot{}, fmt.Errorf("postgres: get lot by player %d: %w", playerID, err)
	}
	return l, nil
}

// TeamExists reports whether a team is registered.
func (s *RegistryStore) TeamExists(ctx context.Context, teamID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM teams WHERE id = $1)`, teamID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: team exists %d: %w", teamID, err)
	}
	return exists, nil
}

// ListLots returns the lots of one auction in lot-id order with pagination.
func (s *RegistryStore) ListLots(ctx context.Context, auctionID int64, opts domain.ListOpts) ([]domain.Lot, error) {
	query := `SELECT ` + lotSelectCols + `
		 FROM auction_players ap
		 JOIN player_auctions a ON a.id = ap.auction_id
		 WHERE ap.auction_id = $1
		 ORDER BY ap.id ASC`
	args := []any{auctionID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lots for auction %d: %w", auctionID, err)
	}
	defer rows.Close()

	return scanLotRows(rows)
}

// ListLiveLots returns lots of live, not-yet-ended auctions ordered by the
// soonest end time.
func (s *RegistryStore) ListLiveLots(ctx context.Context, limit int) ([]domain.Lot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotSelectCols+`
		 FROM auction_players ap
		 JOIN player_auctions a ON a.id = ap.auction_id
		 WHERE a.status = 'live'
		   AND (a.end_time IS NULL OR a.end_time > NOW())
		 ORDER BY a.end_time ASC NULLS LAST, ap.id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list live lots: %w", err)
	}
	defer rows.Close()

	return scanLotRows(rows)
}

func scanLotRows(rows pgx.Rows) ([]domain.Lot, error) {
	var lots []domain.Lot
	for rows.Next() {
		l, err := scanLotFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate lots: %w", err)
	}
	return lots, nil
}

// CloseLot records the terminal outcome of a lot. The WHERE status = 'open'
// guard makes the transition forward-only: a second close, or a close racing
// with another, affects zero rows.
func (s *RegistryStore) CloseLot(ctx context.Context, auctionID, playerID int64, status domain.LotStatus, soldPrice, soldTeamID *int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auction_players
		 SET status = $1, sold_price = $2, sold_team_id = $3, updated_at = NOW()
		 WHERE id = $4 AND auction_id = $5 AND status = 'open'`,
		string(status), soldPrice, soldTeamID, playerID, auctionID)
	if err != nil {
		return fmt.Errorf("postgres: close lot %d/%d: %w", auctionID, playerID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing lot from one already closed.
		var existing string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM auction_players WHERE id = $1 AND auction_id = $2`,
			playerID, auctionID,
		).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: close lot %d/%d recheck: %w", auctionID, playerID, err)
		}
		return domain.ErrLotClosed
	}
	return nil
}

// EligibilityRules returns the published eligibility text, or empty when the
// cms page does not exist.
func (s *RegistryStore) EligibilityRules(ctx context.Context) (string, error) {
	var html string
	err := s.pool.QueryRow(ctx,
		`SELECT html FROM cms_pages WHERE slug = $1`, eligibilitySlug,
	).Scan(&html)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("postgres: eligibility rules: %w", err)
	}
	return html, nil
}

// Compile-time interface check.
var _ domain.AuctionRegistry = (*RegistryStore)(nil)

package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrLotClosed        = errors.New("lot already closed")
	ErrLedgerConflict   = errors.New("ledger conflict")
	ErrLockHeld         = errors.New("lock already held")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRateLimited      = errors.New("rate limited")
)

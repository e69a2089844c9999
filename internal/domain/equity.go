package domain

import (
	"errors"
	"time"
)

var (
	ErrEquityNotFound    = errors.New("equity not found")
	ErrEquityDuplicate   = errors.New("equity with this identifier already exists")
	ErrNotOnWatchlist    = errors.New("equity is not on the watchlist")
	ErrAlreadyWatchlisted = errors.New("equity is already on the watchlist")
)

// Equity is a tracked ticker. AltCode covers feeds that key by a secondary
// exchange code; Identifier is the unique id from the equity universe CSV
// ingestion (out of scope here — only its result is consumed).
type Equity struct {
	ID         string
	Symbol     string
	AltCode    string
	Identifier string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WatchlistItem marks an Equity as top-priority for scheduling.
type WatchlistItem struct {
	EquityID string
	AddedAt  time.Time
}

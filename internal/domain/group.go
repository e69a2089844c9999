package domain

import (
	"errors"
	"time"
)

var (
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupNameConflict  = errors.New("group with this name already exists")
	ErrMembershipNotFound = errors.New("equity is not a member of this group")
)

// Group is a curated basket of equities that gets a composed research
// article once every member's transcript for the target quarter is ready.
type Group struct {
	ID                 string
	Name               string
	DeepResearchPrompt string
	StockSummaryPrompt string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// GroupMembership is the (group, equity) join; unique on the pair.
type GroupMembership struct {
	GroupID   string
	EquityID  string
	AddedAt   time.Time
	UpdatedAt time.Time
}

package chat

import (
	"context"
	"errors"
)

var (
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrNoIdentity   = errors.New("chat: identity required")
)

// TurnAppender appends turns to the identity's conversation in one atomic
// mutation, creating the conversation when it does not exist yet.
type TurnAppender interface {
	AppendTurns(ctx context.Context, identity string, turns []Turn) error
}

// HistoryLoader returns the identity's turns oldest first, or an empty slice.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, identity string) ([]Turn, error)
}

type HistoryStore interface {
	TurnAppender
	HistoryLoader
}

// SessionResolver maps a bearer token to a stable identity ("" = anonymous).
type SessionResolver interface {
	ResolveIdentity(ctx context.Context, bearer string) (string, error)
}

// LimitPolicy reports whether key has used up its allowance.
type LimitPolicy interface {
	LimitReached(ctx context.Context, key string) (bool, error)
}

// NoLimit never reports a reached limit.
type NoLimit struct{}

func (NoLimit) LimitReached(context.Context, string) (bool, error) { return false, nil }

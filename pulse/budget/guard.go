package budget

import (
	"context"

	"github.com/teranos/kwpulse/ai/openrouter"
)

// Chatter is the chat call being guarded.
type Chatter interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// GuardedChatter refuses calls once a spend limit is reached.
type GuardedChatter struct {
	inner   Chatter
	tracker *Tracker
}

// Guard wraps inner so each call is checked against tracker first.
func Guard(inner Chatter, tracker *Tracker) *GuardedChatter {
	return &GuardedChatter{inner: inner, tracker: tracker}
}

func (g *GuardedChatter) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	if err := g.tracker.Check(ctx, g.tracker.Limits().EstimatePerCallUSD); err != nil {
		return nil, err
	}
	return g.inner.Chat(ctx, req)
}

package discovery

import (
	"context"
	"sort"
	"sync"
)

// TokenTable holds one cancellation token per job with an armed loop.
//
// Each Arm gets a fresh generation. Release only removes the entry it armed,
// so a loop winding down after a stop cannot disarm a newer loop for the same
// job. done is closed on Release so callers can wait for the loop to exit.
type TokenTable struct {
	mu      sync.Mutex
	entries map[string]*token
	nextGen uint64
}

type token struct {
	cancel context.CancelFunc
	gen    uint64
	done   chan struct{}
}

// NewTokenTable creates an empty table.
func NewTokenTable() *TokenTable {
	return &TokenTable{entries: make(map[string]*token)}
}

// Arm creates a token for id derived from parent. ok is false if id is already armed.
func (t *TokenTable) Arm(parent context.Context, id string) (ctx context.Context, gen uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, 0, false
	}
	t.nextGen++
	ctx, cancel := context.WithCancel(parent)
	t.entries[id] = &token{cancel: cancel, gen: t.nextGen, done: make(chan struct{})}
	return ctx, t.nextGen, true
}

// Release removes id's token if it still belongs to generation gen.
func (t *TokenTable) Release(id string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, exists := t.entries[id]
	if !exists || tok.gen != gen {
		return
	}
	tok.cancel()
	close(tok.done)
	delete(t.entries, id)
}

// Cancel cancels id's token. The returned channel closes once its loop releases it.
func (t *TokenTable) Cancel(id string) (<-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, exists := t.entries[id]
	if !exists {
		return nil, false
	}
	tok.cancel()
	return tok.done, true
}

// CancelAll cancels every token and returns their done channels.
func (t *TokenTable) CancelAll() []<-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	dones := make([]<-chan struct{}, 0, len(t.entries))
	for _, tok := range t.entries {
		tok.cancel()
		dones = append(dones, tok.done)
	}
	return dones
}

// Has reports whether id is armed.
func (t *TokenTable) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.entries[id]
	return exists
}

// Len returns the number of armed jobs.
func (t *TokenTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// IDs returns the armed job IDs, sorted.
func (t *TokenTable) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package suggest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/ai/openrouter"
	"github.com/teranos/kwpulse/errors"
)

type fakeChat struct {
	reply    string
	err      error
	last     openrouter.ChatRequest
	deadline time.Time
	block    bool
}

func (f *fakeChat) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.last = req
	f.deadline, _ = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &openrouter.ChatResponse{Content: f.reply}, nil
}

func TestSuggest(t *testing.T) {
	fc := &fakeChat{reply: `["Habit Tracker", "daily planner", "focus timer", "todo list"]`}
	p := NewProvider(fc, 0, nil)

	got, err := p.Suggest(context.Background(), "Productivity", "US", 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"habit tracker", "daily planner", "focus timer"}, got)

	assert.Contains(t, fc.last.UserPrompt, `3 App Store search keywords for the "Productivity" category`)
	assert.Contains(t, fc.last.UserPrompt, "US storefront")
	assert.NotContains(t, fc.last.UserPrompt, "variants")
	assert.Equal(t, "Productivity", fc.last.EntityID)
	assert.WithinDuration(t, time.Now().Add(DefaultTimeout), fc.deadline, 5*time.Second)
}

func TestSuggest_Reference(t *testing.T) {
	fc := &fakeChat{reply: `["yoga for beginners"]`}
	p := NewProvider(fc, time.Second, nil)

	_, err := p.Suggest(context.Background(), "Health & Fitness", "GB", 5, "yoga")
	require.NoError(t, err)
	assert.Contains(t, fc.last.UserPrompt, `variants and long-tail alternatives of "yoga"`)
}

func TestSuggest_Timeout(t *testing.T) {
	p := NewProvider(&fakeChat{block: true}, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := p.Suggest(context.Background(), "Finance", "US", 3, "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSuggest_ProviderError(t *testing.T) {
	p := NewProvider(&fakeChat{err: errors.New("status 502")}, 0, nil)

	_, err := p.Suggest(context.Background(), "Finance", "US", 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Finance")
}

func TestSuggest_InvalidInput(t *testing.T) {
	p := NewProvider(&fakeChat{}, 0, nil)

	got, err := p.Suggest(context.Background(), "Finance", "US", 0, "")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = p.Suggest(context.Background(), "  ", "US", 3, "")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"json array", `["budget app","Expense Tracker"]`, []string{"budget app", "expense tracker"}},
		{
			"json inside prose and fences",
			"Here you go:\n```json\n[\"sleep sounds\", \"white noise\"]\n```",
			[]string{"sleep sounds", "white noise"},
		},
		{"bulleted lines", "- meal planner\n* Recipe Box\n• grocery list", []string{"meal planner", "recipe box", "grocery list"}},
		{"numbered lines", "1. photo editor\n2) collage maker", []string{"photo editor", "collage maker"}},
		{"comma separated", `"vpn", "ad blocker", vpn`, []string{"vpn", "ad blocker"}},
		{"empty", "   ", nil},
		{"broken json falls back", `["unterminated`, []string{"[\"unterminated"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKeywords(tt.content)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

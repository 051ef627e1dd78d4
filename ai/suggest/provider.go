// Package suggest asks an LLM for App Store search keywords.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/kwpulse/ai/openrouter"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/logger"
)

// DefaultTimeout bounds a single Suggest call, retries included.
const DefaultTimeout = 30 * time.Second

// Chatter is the slice of the OpenRouter client the provider needs.
type Chatter interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// Provider turns a category into keyword suggestions.
type Provider struct {
	chat    Chatter
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewProvider creates a Provider. A non-positive timeout uses DefaultTimeout.
func NewProvider(chat Chatter, timeout time.Duration, log *zap.SugaredLogger) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Provider{chat: chat, timeout: timeout, logger: log}
}

const systemPrompt = `You are an App Store search optimization assistant.
Reply with a JSON array of lowercase search keywords and nothing else.
Each keyword is one to three words a real user would type into App Store search.
Do not include brand names or app names.`

// Suggest returns up to count keyword ideas for category. audience names the
// market (an uppercased country code). A non-empty reference asks for
// variants of that keyword.
func (p *Provider) Suggest(ctx context.Context, category, audience string, count int, reference string) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, errors.NewInvalidRequestError("category is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.chat.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(category, audience, count, reference),
		EntityType:   "category",
		EntityID:     category,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "suggest keywords for %q", category)
	}

	keywords := ParseKeywords(resp.Content)
	if len(keywords) > count {
		keywords = keywords[:count]
	}

	p.logger.Debugw("Suggestions received",
		logger.FieldCategory, category,
		logger.FieldRequested, count,
		logger.FieldCount, len(keywords),
	)
	return keywords, nil
}

func buildPrompt(category, audience string, count int, reference string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d App Store search keywords for the %q category", count, category)
	if audience != "" {
		fmt.Fprintf(&b, " as searched by users in the %s storefront", audience)
	}
	b.WriteString(".")
	if reference != "" {
		fmt.Fprintf(&b, " Focus on semantic variants and long-tail alternatives of %q; do not repeat it.", reference)
	}
	return b.String()
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)

// ParseKeywords extracts keywords from a model reply. It prefers a JSON array
// anywhere in the text and falls back to one keyword per line or comma.
func ParseKeywords(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start >= 0 && end > start {
		var arr []string
		if err := json.Unmarshal([]byte(content[start:end+1]), &arr); err == nil {
			return clean(arr)
		}
	}

	var parts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = listMarker.ReplaceAllString(line, "")
		parts = append(parts, strings.Split(line, ",")...)
	}
	return clean(parts)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.Trim(strings.TrimSpace(s), `"'`+"`")
		s = strings.ToLower(strings.Join(strings.Fields(s), " "))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

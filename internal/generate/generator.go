// Package generate produces the text of motivational messages: quotes
// from the stored library in manual mode, a remote model call in AI
// mode. Remote failures never reach the scheduler; the generator
// degrades to the static path and logs the downgrade.
package generate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"motivbot/internal/metrics"
	"motivbot/internal/settings"
)

// fallbackMessage is the last resort when even the quote library is
// empty. Delivery must never be blocked on missing content.
const fallbackMessage = "Stay focused and keep building! 🚀"

const (
	model           = "gpt-4o-mini"
	maxTokens       = 80
	temperature     = 0.9
	systemPrompt    = "You are a supportive supervisor and mentor to a small, passionate team building a revolutionary FREE educational platform. Their mission: make education accessible everywhere for everyone, make people LOVE learning through technology, and give people hope. Your tone: personal, like a caring supervisor who believes in their mission. Use \"team\", \"we\", \"our mission\". Keep it under 150 characters. Be energetic and mission-driven."
	userPrompt      = "Write a personal, motivating message for the team. Remind them of their mission to make education free and accessible everywhere. Be authentic, passionate, short and powerful."
	remoteCallLimit = 15 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string        // override for tests; empty means api.openai.com
	Timeout time.Duration // bound on the remote call
}

type Generator struct {
	log    zerolog.Logger
	client *openAIClient

	// rotation index for deterministic quote selection; process-local
	// on purpose, the sequence restarting after a reboot is harmless.
	mu   sync.Mutex
	next int
}

func New(cfg Config, log zerolog.Logger) *Generator {
	g := &Generator{log: log.With().Str("comp", "generate").Logger()}
	if cfg.APIKey != "" {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = remoteCallLimit
		}
		g.client = newOpenAIClient(cfg.APIKey, cfg.BaseURL, timeout)
	}
	return g
}

// Available reports whether AI generation can be attempted at all.
func (g *Generator) Available() bool { return g.client != nil }

// Message returns the text for a motivational send. It never fails and
// never returns an empty string: the AI path falls back to the quote
// library, and an empty library falls back to a built-in line.
func (g *Generator) Message(ctx context.Context, snap *settings.Settings) string {
	if snap.Mode == settings.ModeAI && g.client != nil {
		text, err := g.client.chatCompletion(ctx, model, systemPrompt, userPrompt, maxTokens, temperature)
		if err == nil && text != "" {
			return text
		}
		metrics.GenerationFallbacks.Inc()
		g.log.Warn().Err(err).Msg("remote generation failed, falling back to quote library")
	}
	return g.nextQuote(snap.Quotes)
}

func (g *Generator) nextQuote(quotes []string) string {
	if len(quotes) == 0 {
		return fallbackMessage
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	q := quotes[g.next%len(quotes)]
	g.next++
	return q
}

package content

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SummaryWordLimit caps every summary, generated or fallback.
const SummaryWordLimit = 60

// TextModel produces an AI summary of an announcement body.
type TextModel interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ImageProvider is one strategy in the image fallback chain.
type ImageProvider interface {
	Name() string
	// Available reports whether the provider is configured at all.
	Available() bool
	Image(ctx context.Context, title string, tags []string) (string, error)
}

// Generator derives summaries and image URLs. Provider failures never leave
// this type: they are logged and replaced by the next strategy.
type Generator struct {
	model   TextModel
	images  []ImageProvider
	last    *Picsum
	timeout time.Duration
	logger  *zap.Logger
}

// Option customises a Generator.
type Option func(*Generator)

// WithTextModel enables AI summaries. A nil model keeps the fallback only.
func WithTextModel(m TextModel) Option {
	return func(g *Generator) { g.model = m }
}

// WithImageProviders sets the prioritised image providers tried before the
// always-available picsum default.
func WithImageProviders(providers ...ImageProvider) Option {
	return func(g *Generator) { g.images = append(g.images, providers...) }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithClock replaces the clock used to seed the default image.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.last = NewPicsum(now) }
}

// NewGenerator builds a Generator. Without options it only uses the
// deterministic fallbacks.
func NewGenerator(logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		last:    NewPicsum(time.Now),
		timeout: 15 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Summarize returns an AI summary of text, or the word-truncated fallback
// when no model is configured or the model fails.
func (g *Generator) Summarize(ctx context.Context, text string) string {
	if g.model == nil {
		return FallbackSummary(text)
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.model.Summarize(cctx, text)
	if err != nil {
		g.logger.Warn("summary provider failed, using fallback", zap.Error(err))
		return FallbackSummary(text)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		g.logger.Warn("summary provider returned empty text, using fallback")
		return FallbackSummary(text)
	}
	return FallbackSummary(out)
}

// RenderImage walks the provider chain in order and returns the first valid
// URL. The chain ends with picsum, so a URL is always returned.
func (g *Generator) RenderImage(ctx context.Context, title string, tags []string) string {
	for _, p := range g.images {
		if !p.Available() {
			continue
		}
		u, err := g.tryImage(ctx, p, title, tags)
		if err != nil {
			g.logger.Warn("image provider failed", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		if !ValidImageURL(u) {
			g.logger.Warn("image provider returned invalid url", zap.String("provider", p.Name()), zap.String("url", u))
			continue
		}
		return u
	}
	u, _ := g.last.Image(ctx, title, tags)
	return u
}

func (g *Generator) tryImage(ctx context.Context, p ImageProvider, title string, tags []string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return p.Image(cctx, title, tags)
}

// FallbackSummary keeps the first SummaryWordLimit words of text joined by
// single spaces and appends "..." when words were dropped. Shorter text is
// returned trimmed but otherwise verbatim.
func FallbackSummary(text string) string {
	words := strings.Fields(text)
	if len(words) <= SummaryWordLimit {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:SummaryWordLimit], " ") + "..."
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ValidImageURL accepts absolute http(s) URLs with a host.
func ValidImageURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

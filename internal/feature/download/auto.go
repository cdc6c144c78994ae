package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/fanout"
	"tg_assistant_bot/internal/logging"
	"tg_assistant_bot/internal/store"
)

const (
	cacheTTL     = 24 * time.Hour
	resolveLimit = 30 * time.Second
)

// Hosts whose links the free-text fallback picks up without an explicit
// /auto.
var knownHosts = map[string]struct{}{
	"tiktok.com":        {},
	"www.tiktok.com":    {},
	"vm.tiktok.com":     {},
	"vt.tiktok.com":     {},
	"youtube.com":       {},
	"www.youtube.com":   {},
	"youtu.be":          {},
	"instagram.com":     {},
	"www.instagram.com": {},
}

type resultCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type mediaSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendVideo(ctx context.Context, chatID int64, videoURL, caption string) error
}

// AutoCommand resolves shared links into playable media. It serves the /auto
// command and doubles as the free-text fallback for bare links.
type AutoCommand struct {
	providers []Provider
	cache     resultCache
	messenger mediaSender
	logger    *logrus.Entry
}

// NewAutoCommand constructs the /auto handler. The cache is optional.
func NewAutoCommand(providers []Provider, cache resultCache, messenger mediaSender, logger *logrus.Entry) (*AutoCommand, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &AutoCommand{
		providers: providers,
		cache:     cache,
		messenger: messenger,
		logger:    logger,
	}, nil
}

func (c *AutoCommand) Name() string      { return "auto" }
func (c *AutoCommand) Aliases() []string { return []string{"download", "dl"} }

// Execute handles "/auto <url>".
func (c *AutoCommand) Execute(ctx context.Context, req dispatch.Request) error {
	if len(req.Args) == 0 {
		return c.messenger.SendText(ctx, req.ChatID, "Send a link: /auto <url>")
	}

	link := strings.TrimSpace(req.Args[0])
	if !isHTTPLink(link) {
		return c.messenger.SendText(ctx, req.ChatID, "That doesn't look like a link I can fetch.")
	}

	return c.deliver(ctx, req.ChatID, link)
}

// HandleFreeText picks up bare links from supported hosts. Other messages are
// left for the next fallback.
func (c *AutoCommand) HandleFreeText(ctx context.Context, req dispatch.Request) (bool, error) {
	link, ok := extractKnownLink(req.Text)
	if !ok {
		return false, nil
	}
	return true, c.deliver(ctx, req.ChatID, link)
}

func (c *AutoCommand) deliver(ctx context.Context, chatID int64, link string) error {
	result, err := c.resolve(ctx, link)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "download_failed",
			"chat_id": chatID,
		}).WithError(err).Warn("all providers failed")
		return c.messenger.SendText(ctx, chatID, "Couldn't fetch that link right now. Try again in a bit.")
	}

	return c.messenger.SendVideo(ctx, chatID, result.VideoURL, result.Title)
}

// resolve checks the cache, then races every provider and caches the winner.
func (c *AutoCommand) resolve(ctx context.Context, link string) (Result, error) {
	key := "dl:" + link

	if c.cache != nil {
		var cached Result
		err := c.cache.Get(ctx, key, &cached)
		if err == nil && cached.VideoURL != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, store.ErrCacheMiss) {
			c.logger.WithError(err).WithField("event", "download_cache_read_failed").Warn("cache read failed")
		}
	}

	raceCtx, cancel := context.WithTimeout(ctx, resolveLimit)
	defer cancel()

	probes := make([]func(context.Context) (Result, error), 0, len(c.providers))
	for _, provider := range c.providers {
		provider := provider
		probes = append(probes, func(ctx context.Context) (Result, error) {
			return provider.Resolve(ctx, link)
		})
	}

	result, err := fanout.First(raceCtx, probes)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", link, err)
	}

	c.logger.WithFields(logging.Fields{
		"event":    "download_resolved",
		"provider": result.Provider,
	}).Info("resolved download link")

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, result, cacheTTL); err != nil {
			c.logger.WithError(err).WithField("event", "download_cache_write_failed").Warn("cache write failed")
		}
	}

	return result, nil
}

func isHTTPLink(s string) bool {
	parsed, err := url.Parse(s)
	return err == nil && parsed.Host != "" && (parsed.Scheme == "http" || parsed.Scheme == "https")
}

// extractKnownLink finds the first token that is a link to a supported host.
func extractKnownLink(text string) (string, bool) {
	for _, token := range strings.Fields(text) {
		if !isHTTPLink(token) {
			continue
		}
		parsed, err := url.Parse(token)
		if err != nil {
			continue
		}
		if _, ok := knownHosts[strings.ToLower(parsed.Host)]; ok {
			return token, true
		}
	}
	return "", false
}

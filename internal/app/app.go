// Package app wires configuration into the components shared by the server
// and the worker.
package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/ai"
	"github.com/suPer8Hu/moodtune/internal/cache"
	"github.com/suPer8Hu/moodtune/internal/config"
	"github.com/suPer8Hu/moodtune/internal/recommend"
	"github.com/suPer8Hu/moodtune/internal/spotify"
)

// Provider builds the configured model provider.
func Provider(ctx context.Context, cfg config.Config) (ai.Provider, error) {
	reg := ai.NewRegistry()
	ai.RegisterBuiltins(reg, ai.Endpoints{
		AnthropicBaseURL:  cfg.AnthropicBaseURL,
		AnthropicAPIKey:   cfg.AnthropicAPIKey,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterSiteURL: cfg.OpenRouterSiteURL,
		OpenRouterAppName: cfg.OpenRouterAppName,
		OllamaBaseURL:     cfg.OllamaBaseURL,
	})
	return reg.Get(ctx, cfg.LLMProvider, cfg.LLMModel)
}

// TrackResolver returns a Spotify-backed resolver when credentials are set,
// cached in Redis when REDIS_ADDR is set. The returned func releases it.
func TrackResolver(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (recommend.TrackResolver, func()) {
	noop := func() {}
	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		log.Info("spotify credentials not set, track ids stay empty")
		return recommend.NoopResolver{}, noop
	}

	var r recommend.TrackResolver = spotify.NewResolver(
		spotify.NewClientCredentialsClient(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret),
	)
	if cfg.RedisAddr == "" {
		return r, noop
	}

	rdb, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Warn("redis config invalid, track cache disabled")
		return r, noop
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, track cache disabled")
		_ = rdb.Close()
		return r, noop
	}
	return recommend.NewCachedResolver(r, cache.NewRedisCache(rdb, "moodtune:"), cfg.TrackCacheTTL), func() { _ = rdb.Close() }
}

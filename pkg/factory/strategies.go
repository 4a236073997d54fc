package factory

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	internalhttp "github.com/cecil-the-coder/resource-loader-kit/internal/http"
	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/config"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/ratelimit"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/strategies/file"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/strategies/remote"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// RegisterDefaultStrategies registers the file and http strategies
func RegisterDefaultStrategies(f *Factory) {
	f.Register(config.StrategyTypeFile, Builder{
		Stream: func(sc *config.StrategyConfig, env Env) (types.StreamLoader[string], error) {
			return file.NewStreamLoader(fileConfig(sc))
		},
		Handle: func(sc *config.StrategyConfig, env Env) (types.HandleLoader[string], error) {
			return file.NewHandleLoader(fileConfig(sc))
		},
	})

	f.Register(config.StrategyTypeHTTP, Builder{
		Stream: func(sc *config.StrategyConfig, env Env) (types.StreamLoader[string], error) {
			return remote.NewStreamLoader(remoteConfig(sc, env, types.StrategyStream))
		},
		Handle: func(sc *config.StrategyConfig, env Env) (types.HandleLoader[string], error) {
			return remote.NewHandleLoader(remoteConfig(sc, env, types.StrategyHandle))
		},
	})
}

func fileConfig(sc *config.StrategyConfig) file.Config {
	return file.Config{Root: sc.Root, BufferSize: sc.BufferSize}
}

func remoteConfig(sc *config.StrategyConfig, env Env, strategy types.StrategyName) remote.Config {
	log := env.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String(logger.KeyStrategy, string(strategy)))

	client := internalhttp.NewHTTPClient(internalhttp.HTTPClientConfig{
		Timeout:        env.HTTP.Timeout,
		MaxRetries:     env.HTTP.MaxRetries,
		BaseRetryDelay: env.HTTP.BaseRetryDelay,
		MaxRetryDelay:  env.HTTP.MaxRetryDelay,
		UserAgent:      env.HTTP.UserAgent,
		TokenSource:    TokenSource(env.Context, sc.OAuth),
		Logger:         log,
	})
	env.trackClient(client)

	rc := remote.Config{
		BaseURL:   sc.BaseURL,
		Headers:   sc.Headers,
		SizeQuery: sc.SizeQuery,
		TempDir:   sc.TempDir,
		Logger:    log,
		Client:    client,
	}

	if rl := sc.RateLimit; rl != nil {
		if rl.RequestsPerSecond > 0 {
			rc.Limiter = ratelimit.NewPriorityLimiter(rl.RequestsPerSecond, rl.Burst)
		}
		if rl.TrackServerLimits {
			rc.Tracker = ratelimit.NewTracker()
			rc.Parser = ratelimit.NewHeaderParser()
			rc.LowPriorityThreshold = rl.LowPriorityThreshold
		}
	}
	return rc
}

// TokenSource returns the OAuth2 token source described by o, or nil when o
// is nil. A fixed access token takes precedence over client credentials.
func TokenSource(ctx context.Context, o *config.OAuthConfig) oauth2.TokenSource {
	if o == nil {
		return nil
	}
	if o.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: o.AccessToken,
			TokenType:   o.TokenType,
		})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cc := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	return cc.TokenSource(ctx)
}

package factory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/cecil-the-coder/resource-loader-kit/internal/http"
	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/config"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/dual"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/testutil"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

func quietConfig(primary, secondary *config.StrategyConfig) *config.Config {
	cfg := &config.Config{
		Primary:   primary,
		Secondary: secondary,
		Logging:   logger.Config{Level: "error"},
		Events:    config.EventsConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	cfg.HTTP.MaxRetries = -1
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewFactory_Empty(t *testing.T) {
	f := NewFactory()
	assert.Empty(t, f.SupportedTypes())
}

func TestNew_DefaultStrategies(t *testing.T) {
	assert.Equal(t, []string{config.StrategyTypeFile, config.StrategyTypeHTTP}, New().SupportedTypes())
}

func TestFactory_RegisterConcurrent(t *testing.T) {
	f := NewFactory()
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			f.Register(name, Builder{})
			_ = f.SupportedTypes()
		}(name)
	}
	wg.Wait()
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.SupportedTypes())
}

func TestBuild_CustomBuilder(t *testing.T) {
	f := NewFactory()
	var gotEnv Env
	f.Register("mock", Builder{
		Stream: func(sc *config.StrategyConfig, env Env) (types.StreamLoader[string], error) {
			gotEnv = env
			return testutil.NewMockLoader[string, types.Stream]("mock:", func(string) *testutil.MockFetcher[types.Stream] {
				return testutil.NewMockFetcher[types.Stream]().WithResult(testutil.NewStream("mocked"))
			}), nil
		},
	})

	cfg := quietConfig(&config.StrategyConfig{Type: "mock"}, nil)
	cfg.Name = "custom"
	built, err := f.Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()

	assert.Equal(t, "custom", built.Loader.Name())
	assert.Equal(t, dual.SlotsPrimaryOnly, built.Loader.Slots())
	assert.Equal(t, "mock:a", built.Loader.ID("a"))
	assert.Equal(t, config.DefaultHTTPTimeout, gotEnv.HTTP.Timeout)
	assert.NotNil(t, gotEnv.Logger)

	fetcher, result, err := built.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, result.HasStream())
	assert.False(t, result.HasHandle())
	require.NoError(t, fetcher.Cleanup())
}

func TestBuild_Errors(t *testing.T) {
	f := NewFactory()
	f.Register("stream-only", Builder{
		Stream: func(*config.StrategyConfig, Env) (types.StreamLoader[string], error) {
			return nil, types.NewConfigurationError("boom")
		},
	})

	_, err := f.Build(context.Background(), nil)
	testutil.AssertConfigurationError(t, err)

	_, err = f.Build(context.Background(), quietConfig(&config.StrategyConfig{Type: "ftp"}, nil))
	testutil.AssertConfigurationError(t, err)

	_, err = f.Build(context.Background(), quietConfig(nil, &config.StrategyConfig{Type: "stream-only"}))
	testutil.AssertConfigurationError(t, err)

	_, err = f.Build(context.Background(), quietConfig(&config.StrategyConfig{Type: "stream-only"}, nil))
	testutil.AssertConfigurationError(t, err)
	assert.Contains(t, err.Error(), "primary")

	_, err = f.Build(context.Background(), quietConfig(nil, nil))
	testutil.AssertConfigurationError(t, err)

	cfg := quietConfig(&config.StrategyConfig{Type: "file", Root: t.TempDir()}, nil)
	cfg.Logging.Format = "xml"
	_, err = f.Build(context.Background(), cfg)
	testutil.AssertConfigurationError(t, err)
}

func TestBuild_FileStrategies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", "local bytes")

	cfg := quietConfig(
		&config.StrategyConfig{Type: config.StrategyTypeFile, Root: dir},
		&config.StrategyConfig{Type: config.StrategyTypeFile, Root: dir},
	)
	built, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()

	assert.Equal(t, dual.SlotsBoth, built.Loader.Slots())
	require.NotNil(t, built.Collector)

	fetcher, result, err := built.Fetch(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, types.StrategyDual, result.Source())

	data, err := io.ReadAll(result.Handle)
	require.NoError(t, err)
	assert.Equal(t, "local bytes", string(data))
	require.NoError(t, fetcher.Cleanup())

	snap := built.Collector.GetSnapshot()
	assert.Equal(t, int64(1), snap.Requests)
	assert.Equal(t, int64(1), snap.Successes)
}

func TestBuild_EventsDisabled(t *testing.T) {
	cfg := quietConfig(&config.StrategyConfig{Type: config.StrategyTypeFile, Root: t.TempDir()}, nil)
	cfg.Events.Enabled = false

	built, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, built.Collector)
	assert.NoError(t, built.Close())
}

func TestBuild_HTTPFallsBackToFile(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := t.TempDir()
	writeFile(t, dir, "a.png", "from disk")

	cfg := quietConfig(
		&config.StrategyConfig{Type: config.StrategyTypeHTTP, BaseURL: server.URL},
		&config.StrategyConfig{Type: config.StrategyTypeFile, Root: dir},
	)
	built, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()

	fetcher, result, err := built.Fetch(context.Background(), "a.png")
	require.NoError(t, err)
	defer func() { _ = fetcher.Cleanup() }()

	assert.False(t, result.HasStream())
	assert.True(t, result.HasHandle())

	snap := built.Collector.GetSnapshot()
	assert.Equal(t, int64(1), snap.Fallbacks)
	assert.Equal(t, int64(1), snap.SwallowedFailures)

	metrics := built.HTTPMetrics()
	require.Contains(t, metrics, "primary")
	assert.NotContains(t, metrics, "secondary")
	assert.Equal(t, int64(1), metrics["primary"].TotalRequests)
	assert.Equal(t, int64(1), metrics["primary"].ResponsesByCode[http.StatusNotFound])

	built.ResetHTTPMetrics()
	assert.Equal(t, int64(0), built.HTTPMetrics()["primary"].TotalRequests)
}

func TestBuild_HTTPStaticToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer static-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte("secret bytes"))
	}))
	defer server.Close()

	cfg := quietConfig(&config.StrategyConfig{
		Type:    config.StrategyTypeHTTP,
		BaseURL: server.URL,
		Headers: map[string]string{"X-Test": "yes"},
		OAuth:   &config.OAuthConfig{AccessToken: "static-token"},
	}, nil)

	built, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()

	fetcher, result, err := built.Fetch(context.Background(), "img")
	require.NoError(t, err)
	data, err := io.ReadAll(result.Stream)
	require.NoError(t, err)
	assert.Equal(t, "secret bytes", string(data))
	require.NoError(t, fetcher.Cleanup())
}

func TestBuild_HTTPClientCredentials(t *testing.T) {
	var tokenRequests int
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokenRequests++
		mu.Unlock()
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "cc-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("cc bytes"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := quietConfig(nil, &config.StrategyConfig{
		Type:    config.StrategyTypeHTTP,
		BaseURL: server.URL + "/files",
		TempDir: t.TempDir(),
		OAuth: &config.OAuthConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			TokenURL:     server.URL + "/token",
		},
	})

	built, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()

	for i := 0; i < 2; i++ {
		fetcher, result, err := built.Fetch(context.Background(), "a.bin")
		require.NoError(t, err)
		data, err := io.ReadAll(result.Handle)
		require.NoError(t, err)
		assert.Equal(t, "cc bytes", string(data))
		require.NoError(t, fetcher.Cleanup())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, tokenRequests, "token is reused across requests")
}

func TestTokenSource(t *testing.T) {
	assert.Nil(t, TokenSource(context.Background(), nil))

	ts := TokenSource(context.Background(), &config.OAuthConfig{AccessToken: "abc", TokenType: "Bearer"})
	require.NotNil(t, ts)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
}

func TestRemoteConfig_RateLimit(t *testing.T) {
	sc := &config.StrategyConfig{
		Type: config.StrategyTypeHTTP,
		RateLimit: &config.RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             3,
			TrackServerLimits:    true,
			LowPriorityThreshold: 0.8,
		},
	}
	clients := map[string]*internalhttp.HTTPClient{}
	env := Env{Logger: logger.Discard(), Slot: "primary", clients: clients}
	rc := remoteConfig(sc, env, types.StrategyStream)
	require.NotNil(t, rc.Limiter)
	assert.Equal(t, 3, rc.Limiter.Burst())
	assert.NotNil(t, rc.Tracker)
	assert.NotNil(t, rc.Parser)
	assert.NotNil(t, rc.Client)
	assert.Equal(t, 0.8, rc.LowPriorityThreshold)
	assert.Same(t, rc.Client, clients["primary"])

	rc = remoteConfig(&config.StrategyConfig{Type: config.StrategyTypeHTTP}, Env{}, types.StrategyHandle)
	assert.Nil(t, rc.Limiter)
	assert.Nil(t, rc.Tracker)
}

func TestBuild_CleanupDuringFetchAbortsRemotePrimary(t *testing.T) {
	received := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	dir := t.TempDir()
	writeFile(t, dir, "a.png", "data")

	cfg := quietConfig(
		&config.StrategyConfig{Type: config.StrategyTypeHTTP, BaseURL: server.URL},
		&config.StrategyConfig{Type: config.StrategyTypeFile, Root: dir},
	)
	built, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()

	f := built.Loader.Derive("a.png", 0, 0)
	type outcome struct {
		result *dual.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := f.Fetch(context.Background(), types.PriorityNormal)
		done <- outcome{result, err}
	}()

	<-received
	require.NoError(t, f.Cleanup())

	select {
	case out := <-done:
		testutil.AssertCanceled(t, out.err)
		assert.Nil(t, out.result)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not terminate after cleanup")
	}
	assert.Equal(t, dual.StateFailed, f.State())
	assert.NoError(t, f.Cleanup())
}

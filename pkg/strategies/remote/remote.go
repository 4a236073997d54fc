// Package remote provides HTTP-backed strategies.
//
// StreamLoader returns the response body of a GET request as a stream.
// HandleLoader spools the body into a temporary file and returns that file as
// a seekable handle; the file is removed on Cleanup. Models are either
// absolute http(s) URLs or paths joined onto the configured base URL.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	internalhttp "github.com/cecil-the-coder/resource-loader-kit/internal/http"
	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/ratelimit"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

const (
	// StreamIDPrefix prefixes stream loader identities
	StreamIDPrefix = "http-stream:"

	// HandleIDPrefix prefixes handle loader identities
	HandleIDPrefix = "http-handle:"
)

// Config configures the HTTP strategies
type Config struct {
	// BaseURL is joined with relative models. Optional when every model is an absolute URL.
	BaseURL string

	// Headers are added to every request of this strategy
	Headers map[string]string

	// SizeQuery appends the requested width and height as "w" and "h" query parameters
	SizeQuery bool

	// TempDir holds spooled handle downloads. Empty means os.TempDir().
	TempDir string

	// Client performs the requests. Nil creates a client with default settings.
	Client *internalhttp.HTTPClient

	// Limiter throttles non-immediate requests. Optional.
	Limiter *ratelimit.PriorityLimiter

	// Tracker records the limits servers report. Optional; requires Parser.
	Tracker *ratelimit.Tracker
	Parser  ratelimit.Parser

	// LowPriorityThreshold sheds PriorityLow requests once this fraction
	// (0 to 1) of a host's reported window is used. Zero disables shedding;
	// requires Tracker.
	LowPriorityThreshold float64

	Logger *slog.Logger
}

type base struct {
	baseURL   *url.URL
	headers   map[string]string
	sizeQuery bool
	tempDir   string
	client    *internalhttp.HTTPClient
	limiter   *ratelimit.PriorityLimiter
	tracker   *ratelimit.Tracker
	parser    ratelimit.Parser
	shedAt    float64
	log       *slog.Logger
}

func newBase(cfg Config) (base, error) {
	b := base{
		headers:   cfg.Headers,
		sizeQuery: cfg.SizeQuery,
		tempDir:   cfg.TempDir,
		client:    cfg.Client,
		limiter:   cfg.Limiter,
		tracker:   cfg.Tracker,
		parser:    cfg.Parser,
		shedAt:    cfg.LowPriorityThreshold,
		log:       cfg.Logger,
	}

	if cfg.LowPriorityThreshold < 0 || cfg.LowPriorityThreshold > 1 {
		return base{}, types.NewConfigurationError(fmt.Sprintf("low priority threshold %v outside [0, 1]", cfg.LowPriorityThreshold))
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return base{}, types.NewConfigurationError(fmt.Sprintf("invalid base URL %q", cfg.BaseURL))
		}
		b.baseURL = u
	}
	if b.client == nil {
		b.client = internalhttp.NewHTTPClient(internalhttp.HTTPClientConfig{Logger: cfg.Logger})
	}
	if b.tracker != nil && b.parser == nil {
		b.parser = ratelimit.NewHeaderParser()
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b, nil
}

// resolve builds the request URL for a model
func (b base) resolve(model string, width, height int) (string, error) {
	var u *url.URL
	if parsed, err := url.Parse(model); err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		u = parsed
	} else {
		if b.baseURL == nil {
			return "", fmt.Errorf("model %q is not an absolute URL and no base URL is configured", model)
		}
		rel, err := url.Parse(strings.TrimLeft(model, "/"))
		if err != nil {
			return "", fmt.Errorf("invalid model %q: %w", model, err)
		}
		root := *b.baseURL
		if !strings.HasSuffix(root.Path, "/") {
			root.Path += "/"
		}
		u = root.ResolveReference(rel)
	}

	if b.sizeQuery && width > 0 && height > 0 {
		q := u.Query()
		q.Set("w", strconv.Itoa(width))
		q.Set("h", strconv.Itoa(height))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// StreamLoader is a types.StreamLoader over HTTP GET
type StreamLoader struct {
	base
}

var _ types.StreamLoader[string] = (*StreamLoader)(nil)

// NewStreamLoader creates an HTTP stream loader
func NewStreamLoader(cfg Config) (*StreamLoader, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &StreamLoader{base: b}, nil
}

// Fetcher returns a fetcher for model. Nothing is requested until Fetch.
func (l *StreamLoader) Fetcher(model string, width, height int) types.Fetcher[types.Stream] {
	target, err := l.resolve(model, width, height)
	return &streamFetcher{request: newRequest(l.base, types.StrategyStream, target, err)}
}

// ID returns "http-stream:" followed by the model
func (l *StreamLoader) ID(model string) string {
	return StreamIDPrefix + model
}

// HandleLoader is a types.HandleLoader that spools HTTP GET bodies to disk
type HandleLoader struct {
	base
}

var _ types.HandleLoader[string] = (*HandleLoader)(nil)

// NewHandleLoader creates an HTTP handle loader
func NewHandleLoader(cfg Config) (*HandleLoader, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &HandleLoader{base: b}, nil
}

// Fetcher returns a fetcher for model. Nothing is requested until Fetch.
func (l *HandleLoader) Fetcher(model string, width, height int) types.Fetcher[types.Handle] {
	target, err := l.resolve(model, width, height)
	return &handleFetcher{request: newRequest(l.base, types.StrategyHandle, target, err)}
}

// ID returns "http-handle:" followed by the model
func (l *HandleLoader) ID(model string) string {
	return HandleIDPrefix + model
}

// request is the per-fetch state shared by both fetchers
type request struct {
	base
	strategy   types.StrategyName
	target     string
	resolveErr error

	mu       sync.Mutex
	started  bool
	canceled bool
	cancel   context.CancelFunc
}

func newRequest(b base, strategy types.StrategyName, target string, resolveErr error) *request {
	return &request{base: b, strategy: strategy, target: target, resolveErr: resolveErr}
}

// begin derives the request context. The returned context stays live until
// release or Cancel, so a streamed body can be read after Fetch returns.
func (r *request) begin(ctx context.Context) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.canceled {
		return nil, types.NewCanceledError(r.strategy, context.Canceled)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewCanceledError(r.strategy, err)
	}
	if r.started {
		return nil, types.NewLoaderError(r.strategy, types.ErrCodeInvalidState, "request already started").
			WithOperation("fetch")
	}
	r.started = true

	if r.resolveErr != nil {
		return nil, types.NewConfigurationError(r.resolveErr.Error())
	}

	ctx, r.cancel = context.WithCancel(ctx)
	return ctx, nil
}

// get performs the GET request and returns a successful response
func (r *request) get(ctx context.Context, priority types.Priority) (*responseBody, error) {
	host := hostOf(r.target)

	if r.tracker != nil && priority != types.PriorityImmediate && !r.tracker.CanMakeRequest(host) {
		wait := r.tracker.GetWaitTime(host)
		return nil, types.NewLoaderError(r.strategy, types.ErrCodeRateLimit,
			fmt.Sprintf("host %s is rate limited, retry in %s", host, ratelimit.FormatDuration(wait))).
			WithOperation("fetch")
	}

	if r.tracker != nil && r.shedAt > 0 && priority == types.PriorityLow && r.tracker.ShouldThrottle(host, r.shedAt) {
		return nil, types.NewLoaderError(r.strategy, types.ErrCodeRateLimit,
			fmt.Sprintf("host %s is near its rate limit, low priority request shed", host)).
			WithOperation("fetch")
	}

	if err := r.limiter.Wait(ctx, priority); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, types.NewCanceledError(r.strategy, ctxErr)
		}
		return nil, types.NewLoaderError(r.strategy, types.ErrCodeRateLimit, "client rate limit").
			WithOperation("fetch").
			WithOriginalErr(err)
	}

	resp, err := r.client.Get(ctx, r.target, r.headers)
	if err != nil {
		return nil, internalhttp.TransportError(ctx, err, r.strategy)
	}

	if r.tracker != nil {
		if info, perr := r.parser.Parse(resp.Header, host); perr == nil && info != nil {
			r.tracker.Update(info)
		} else if perr != nil {
			r.log.Debug("ignoring malformed rate limit headers",
				slog.String(logger.KeyURL, r.target),
				logger.Err(perr),
			)
		}
	}

	r.log.Debug("remote response",
		slog.String(logger.KeyStrategy, string(r.strategy)),
		slog.String(logger.KeyURL, r.target),
		slog.Int(logger.KeyStatus, resp.StatusCode),
	)

	if !internalhttp.IsSuccess(resp.StatusCode) {
		return nil, internalhttp.StatusError(resp, r.strategy)
	}
	return &responseBody{ReadCloser: resp.Body, length: resp.ContentLength}, nil
}

// release ends the request context
func (r *request) release() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancel aborts the request in flight, including reads of a streamed body.
func (r *request) Cancel() {
	r.mu.Lock()
	r.canceled = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}

package dual

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// CleanupPolicy decides what happens when one strategy's cleanup fails
type CleanupPolicy string

const (
	// CleanupBestEffort attempts every cleanup and joins the failures
	CleanupBestEffort CleanupPolicy = "best_effort"

	// CleanupStopOnError stops at the first failing cleanup
	CleanupStopOnError CleanupPolicy = "stop_on_error"
)

// ParseCleanupPolicy converts a policy name into a CleanupPolicy. Empty means best effort.
func ParseCleanupPolicy(s string) (CleanupPolicy, error) {
	switch CleanupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CleanupBestEffort:
		return CleanupBestEffort, nil
	case CleanupStopOnError:
		return CleanupStopOnError, nil
	default:
		return CleanupBestEffort, fmt.Errorf("unknown cleanup policy %q", s)
	}
}

// UnmarshalYAML validates the policy name while decoding
func (p *CleanupPolicy) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseCleanupPolicy(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DefaultIDCacheLimit bounds how many model identities a Loader memoizes
const DefaultIDCacheLimit = 4096

type options struct {
	name          string
	collector     types.EventCollector
	logger        *slog.Logger
	cleanupPolicy CleanupPolicy
	idCacheLimit  int
}

func defaultOptions() options {
	return options{
		name:          "dual",
		logger:        slog.Default(),
		cleanupPolicy: CleanupBestEffort,
		idCacheLimit:  DefaultIDCacheLimit,
	}
}

// Option configures a Loader
type Option func(*options)

// WithName sets the loader name used in events and logs
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithCollector sends diagnostic events to collector
func WithCollector(collector types.EventCollector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

// WithLogger sets the structured logger. Swallowed failures are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCleanupPolicy sets the cleanup failure policy
func WithCleanupPolicy(policy CleanupPolicy) Option {
	return func(o *options) {
		if policy != "" {
			o.cleanupPolicy = policy
		}
	}
}

// WithIDCacheLimit bounds the identity memo. Zero or negative disables memoization.
func WithIDCacheLimit(limit int) Option {
	return func(o *options) {
		o.idCacheLimit = limit
	}
}

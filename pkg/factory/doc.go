// Package factory assembles dual loaders from configuration. Strategy types
// are registered with a Factory; Build resolves the configured primary and
// secondary slots against that registry and wires the shared HTTP client,
// OAuth2 token sources, rate limiting, event collection and logging.
package factory

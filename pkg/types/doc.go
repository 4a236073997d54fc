// Package types defines the core interfaces and data structures for the Resource Loader Kit.
// It includes the per-strategy loader and fetcher contracts, request priorities,
// the typed error model, and the diagnostic event structures shared by every package.
package types

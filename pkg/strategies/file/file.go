// Package file provides filesystem-backed strategies. Models are slash
// separated paths relative to a root directory.
//
// StreamLoader yields a buffered stream over the file and HandleLoader yields
// the open file itself as a seekable handle. Both close what they opened on
// Cleanup.
package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

const (
	// StreamIDPrefix prefixes stream loader identities
	StreamIDPrefix = "file-stream:"

	// HandleIDPrefix prefixes handle loader identities
	HandleIDPrefix = "file-handle:"

	// DefaultBufferSize is the stream read buffer size
	DefaultBufferSize = 32 * 1024
)

// Config holds configuration for the filesystem strategies.
type Config struct {
	// Root is the directory models are resolved against.
	Root string

	// BufferSize is the stream buffer size.
	// Default: 32 KiB
	BufferSize int
}

// root resolves models to paths inside one directory
type root struct {
	dir        string
	bufferSize int
}

func newRoot(cfg Config) (root, error) {
	if cfg.Root == "" {
		return root{}, types.NewConfigurationError("file strategy root is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return root{}, types.NewConfigurationError(fmt.Sprintf("file strategy root: %v", err))
	}
	if !info.IsDir() {
		return root{}, types.NewConfigurationError(fmt.Sprintf("file strategy root %q is not a directory", cfg.Root))
	}

	return root{dir: cfg.Root, bufferSize: cfg.BufferSize}, nil
}

// resolve maps a model to a path under the root. Cleaning against "/" keeps
// ".." segments from escaping the root.
func (r root) resolve(model string) string {
	return filepath.Join(r.dir, filepath.FromSlash(path.Clean("/"+model)))
}

// StreamLoader is a types.StreamLoader reading files under a root directory.
type StreamLoader struct {
	root root
}

var _ types.StreamLoader[string] = (*StreamLoader)(nil)

// NewStreamLoader creates a stream loader for cfg.Root.
func NewStreamLoader(cfg Config) (*StreamLoader, error) {
	r, err := newRoot(cfg)
	if err != nil {
		return nil, err
	}
	return &StreamLoader{root: r}, nil
}

// Fetcher returns a fetcher for model. The file is opened by Fetch.
func (l *StreamLoader) Fetcher(model string, _, _ int) types.Fetcher[types.Stream] {
	return &streamFetcher{opener: opener{path: l.root.resolve(model), strategy: types.StrategyStream}, bufferSize: l.root.bufferSize}
}

// ID returns "file-stream:" followed by the model
func (l *StreamLoader) ID(model string) string {
	return StreamIDPrefix + model
}

// HandleLoader is a types.HandleLoader opening files under a root directory.
type HandleLoader struct {
	root root
}

var _ types.HandleLoader[string] = (*HandleLoader)(nil)

// NewHandleLoader creates a handle loader for cfg.Root.
func NewHandleLoader(cfg Config) (*HandleLoader, error) {
	r, err := newRoot(cfg)
	if err != nil {
		return nil, err
	}
	return &HandleLoader{root: r}, nil
}

// Fetcher returns a fetcher for model. The file is opened by Fetch.
func (l *HandleLoader) Fetcher(model string, _, _ int) types.Fetcher[types.Handle] {
	return &handleFetcher{opener: opener{path: l.root.resolve(model), strategy: types.StrategyHandle}}
}

// ID returns "file-handle:" followed by the model
func (l *HandleLoader) ID(model string) string {
	return HandleIDPrefix + model
}

// opener holds the file state shared by both fetchers
type opener struct {
	path     string
	strategy types.StrategyName

	mu       sync.Mutex
	file     *os.File
	opened   bool
	canceled bool
}

func (o *opener) open(ctx context.Context) (*os.File, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.canceled {
		return nil, types.NewCanceledError(o.strategy, context.Canceled)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewCanceledError(o.strategy, err)
	}
	if o.opened {
		return nil, types.NewLoaderError(o.strategy, types.ErrCodeInvalidState, "file already opened").
			WithOperation("fetch")
	}

	o.opened = true
	f, err := os.Open(o.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewNotFoundError(o.strategy, fmt.Sprintf("file %s not found", o.path)).
				WithOperation("fetch").
				WithOriginalErr(err)
		}
		return nil, types.NewLoaderError(o.strategy, types.ErrCodeUnknown, "open failed").
			WithOperation("fetch").
			WithOriginalErr(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, types.NewLoaderError(o.strategy, types.ErrCodeUnknown, "stat failed").
			WithOperation("fetch").
			WithOriginalErr(err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, types.NewNotFoundError(o.strategy, fmt.Sprintf("%s is a directory", o.path)).
			WithOperation("fetch")
	}

	o.file = f
	return f, nil
}

// Cleanup closes the file if it was opened. Calling it again is a no-op, and a
// file already closed by the caller is not an error.
func (o *opener) Cleanup() error {
	o.mu.Lock()
	f := o.file
	o.file = nil
	o.mu.Unlock()

	if f == nil {
		return nil
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Cancel makes a Fetch that has not opened the file yet fail. Opening a
// local file does not block, so there is nothing in flight to abort.
func (o *opener) Cancel() {
	o.mu.Lock()
	o.canceled = true
	o.mu.Unlock()
}

type streamFetcher struct {
	opener
	bufferSize int
}

func (f *streamFetcher) Fetch(ctx context.Context, _ types.Priority) (types.Stream, error) {
	file, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{Reader: bufio.NewReaderSize(file, f.bufferSize), file: file}, nil
}

type handleFetcher struct {
	opener
}

func (f *handleFetcher) Fetch(ctx context.Context, _ types.Priority) (types.Handle, error) {
	file, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// bufferedFile reads through a buffer and closes the underlying file
type bufferedFile struct {
	*bufio.Reader
	file *os.File
}

func (b *bufferedFile) Close() error {
	return b.file.Close()
}

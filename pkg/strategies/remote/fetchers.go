package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// responseBody is a response body with its advertised length
type responseBody struct {
	io.ReadCloser
	length int64
}

type streamFetcher struct {
	*request

	bodyMu sync.Mutex
	body   io.ReadCloser
}

func (f *streamFetcher) Fetch(ctx context.Context, priority types.Priority) (types.Stream, error) {
	ctx, err := f.begin(ctx)
	if err != nil {
		return nil, err
	}

	body, err := f.get(ctx, priority)
	if err != nil {
		f.release()
		return nil, err
	}

	f.bodyMu.Lock()
	f.body = body
	f.bodyMu.Unlock()
	return body, nil
}

// Cleanup closes the response body and ends the request context
func (f *streamFetcher) Cleanup() error {
	f.bodyMu.Lock()
	body := f.body
	f.body = nil
	f.bodyMu.Unlock()

	f.release()
	if body == nil {
		return nil
	}
	return body.Close()
}

type handleFetcher struct {
	*request

	fileMu sync.Mutex
	file   *os.File
}

func (f *handleFetcher) Fetch(ctx context.Context, priority types.Priority) (types.Handle, error) {
	ctx, err := f.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer f.release()

	body, err := f.get(ctx, priority)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(f.tempDir, "resource-*")
	if err != nil {
		return nil, types.NewLoaderError(f.strategy, types.ErrCodeUnknown, "create spool file").
			WithOperation("fetch").
			WithOriginalErr(err)
	}
	// Track the file right away so Cleanup removes it even if spooling fails
	f.fileMu.Lock()
	f.file = tmp
	f.fileMu.Unlock()

	n, err := io.Copy(tmp, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, types.NewCanceledError(f.strategy, ctxErr)
		}
		return nil, types.NewNetworkError(f.strategy, "read response body").
			WithOperation("fetch").
			WithOriginalErr(err)
	}
	if body.length >= 0 && n != body.length {
		return nil, types.NewNetworkError(f.strategy, "short response body").
			WithOperation("fetch").
			WithOriginalErr(io.ErrUnexpectedEOF)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, types.NewLoaderError(f.strategy, types.ErrCodeUnknown, "rewind spool file").
			WithOperation("fetch").
			WithOriginalErr(err)
	}

	f.log.Debug("spooled remote resource",
		slog.String(logger.KeyURL, f.target),
		slog.String(logger.KeyPath, tmp.Name()),
		slog.Int64(logger.KeyBytes, n),
	)
	return tmp, nil
}

// Cleanup closes and removes the spool file
func (f *handleFetcher) Cleanup() error {
	f.fileMu.Lock()
	tmp := f.file
	f.file = nil
	f.fileMu.Unlock()

	f.release()
	if tmp == nil {
		return nil
	}

	var errs []error
	if err := tmp.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, err)
	}
	if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

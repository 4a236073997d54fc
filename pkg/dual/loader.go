package dual

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// Slots records which strategies a Loader was built with
type Slots int

const (
	SlotsNone Slots = iota
	SlotsPrimaryOnly
	SlotsSecondaryOnly
	SlotsBoth
)

func slotsFor(hasPrimary, hasSecondary bool) Slots {
	switch {
	case hasPrimary && hasSecondary:
		return SlotsBoth
	case hasPrimary:
		return SlotsPrimaryOnly
	case hasSecondary:
		return SlotsSecondaryOnly
	default:
		return SlotsNone
	}
}

// HasPrimary reports whether the stream slot is filled
func (s Slots) HasPrimary() bool {
	return s == SlotsPrimaryOnly || s == SlotsBoth
}

// HasSecondary reports whether the handle slot is filled
func (s Slots) HasSecondary() bool {
	return s == SlotsSecondaryOnly || s == SlotsBoth
}

func (s Slots) String() string {
	switch s {
	case SlotsPrimaryOnly:
		return "primary_only"
	case SlotsSecondaryOnly:
		return "secondary_only"
	case SlotsBoth:
		return "both"
	default:
		return "none"
	}
}

// Loader composes a stream loader and a handle loader. It is long-lived and
// safe for concurrent use.
type Loader[M comparable] struct {
	stream types.StreamLoader[M]
	handle types.HandleLoader[M]
	slots  Slots
	opts   options

	ids     sync.Map // M -> *idEntry
	idCount atomic.Int64
}

type idEntry struct {
	once sync.Once
	id   string
}

var _ types.ModelLoader[string, *Result] = (*Loader[string])(nil)

// NewLoader creates a Loader. Either loader may be nil, but not both.
func NewLoader[M comparable](stream types.StreamLoader[M], handle types.HandleLoader[M], opts ...Option) (*Loader[M], error) {
	slots := slotsFor(stream != nil, handle != nil)
	if slots == SlotsNone {
		return nil, types.NewConfigurationError("at least one of the stream and handle loaders must be set")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Loader[M]{
		stream: stream,
		handle: handle,
		slots:  slots,
		opts:   o,
	}, nil
}

// Name returns the loader name used in events and logs
func (l *Loader[M]) Name() string { return l.opts.name }

// Slots returns which strategies are present
func (l *Loader[M]) Slots() Slots { return l.slots }

// Derive returns a fresh Fetcher for the model. Nothing is fetched yet.
func (l *Loader[M]) Derive(model M, width, height int) *Fetcher {
	var (
		streamFetcher types.Fetcher[types.Stream]
		handleFetcher types.Fetcher[types.Handle]
	)
	if l.stream != nil {
		streamFetcher = l.stream.Fetcher(model, width, height)
	}
	if l.handle != nil {
		handleFetcher = l.handle.Fetcher(model, width, height)
	}

	return newFetcher(l.opts, l.ID(model), streamFetcher, handleFetcher)
}

// Fetcher implements types.ModelLoader so a Loader can itself be composed
func (l *Loader[M]) Fetcher(model M, width, height int) types.Fetcher[*Result] {
	return l.Derive(model, width, height)
}

// ID returns the stream loader's ID followed by the handle loader's ID.
// Absent loaders contribute nothing. The value is computed once per model.
func (l *Loader[M]) ID(model M) string {
	if l.opts.idCacheLimit <= 0 {
		return l.computeID(model)
	}

	if v, ok := l.ids.Load(model); ok {
		entry := v.(*idEntry)
		entry.once.Do(func() { entry.id = l.computeID(model) })
		return entry.id
	}

	if l.idCount.Load() >= int64(l.opts.idCacheLimit) {
		return l.computeID(model)
	}

	v, loaded := l.ids.LoadOrStore(model, &idEntry{})
	if !loaded {
		l.idCount.Add(1)
	}
	entry := v.(*idEntry)
	entry.once.Do(func() { entry.id = l.computeID(model) })
	return entry.id
}

func (l *Loader[M]) computeID(model M) string {
	var b strings.Builder
	if l.stream != nil {
		b.WriteString(l.stream.ID(model))
	}
	if l.handle != nil {
		b.WriteString(l.handle.ID(model))
	}
	return b.String()
}

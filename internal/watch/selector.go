// Package watch fetches data for the currently selected key and keeps only
// the result for the latest selection.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/simexchange/internal/metrics"
)

// ErrClosed is returned by Selector operations after Close.
var ErrClosed = errors.New("watch: selector closed")

// FetchFunc loads the value for key. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Result is the outcome of one fetch.
type Result[T any] struct {
	Key       string
	Value     T
	Err       error
	FetchedAt time.Time
}

// Option configures a Selector.
type Option[T any] func(*Selector[T])

// WithOnResult registers fn to receive every result that is kept. It is
// called without the selector's lock held.
func WithOnResult[T any](fn func(Result[T])) Option[T] {
	return func(s *Selector[T]) { s.onResult = fn }
}

// WithLogger sets the logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(s *Selector[T]) { s.logger = l }
}

// WithMetrics records fetch results under the selector's name.
func WithMetrics[T any](m *metrics.Metrics) Option[T] {
	return func(s *Selector[T]) { s.metrics = m }
}

// Selector tracks one selected key. Changing the key issues exactly one
// fetch for the new key and cancels the fetch of the previous key, whose
// result is then dropped.
type Selector[T any] struct {
	name     string
	fetch    FetchFunc[T]
	onResult func(Result[T])
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	key     string
	gen     uint64
	cancel  context.CancelFunc
	current *Result[T]
	closed  bool
	wg      sync.WaitGroup
}

// NewSelector creates a Selector named name that loads values with fetch.
func NewSelector[T any](name string, fetch FetchFunc[T], opts ...Option[T]) *Selector[T] {
	s := &Selector[T]{
		name:    name,
		fetch:   fetch,
		logger:  slog.Default(),
		metrics: metrics.NopMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "watch"), slog.String("watcher", name))
	return s
}

// Select makes key the current selection. Selecting the current key again
// does nothing; selecting "" clears the selection.
func (s *Selector[T]) Select(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if key == s.key {
		return nil
	}
	s.key = key
	s.current = nil
	s.restartLocked()
	return nil
}

// Refresh fetches the current key again, superseding any fetch in flight.
func (s *Selector[T]) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.restartLocked()
	return nil
}

// restartLocked cancels the running fetch and, when a key is selected,
// starts a new one under a fresh generation.
func (s *Selector[T]) restartLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	if s.key == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen, key := s.gen, s.key

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, gen, key)
	}()
}

func (s *Selector[T]) run(ctx context.Context, gen uint64, key string) {
	value, err := s.fetch(ctx, key)
	res := Result[T]{Key: key, Value: value, Err: err, FetchedAt: s.now().UTC()}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.metrics.SelectorFetches.With("watcher", s.name, "result", "stale").Add(1)
		return
	}
	s.current = &res
	s.cancel = nil
	s.mu.Unlock()

	if err != nil {
		s.metrics.SelectorFetches.With("watcher", s.name, "result", "error").Add(1)
		s.logger.Debug("fetch failed", slog.String("key", key), slog.String("error", err.Error()))
	} else {
		s.metrics.SelectorFetches.With("watcher", s.name, "result", "ok").Add(1)
	}
	if s.onResult != nil {
		s.onResult(res)
	}
}

// Key returns the selected key.
func (s *Selector[T]) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Current returns the result for the selected key, if its fetch finished.
func (s *Selector[T]) Current() (Result[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Result[T]{}, false
	}
	return *s.current, true
}

// Poll refreshes the selection every interval until ctx is done or the
// selector is closed.
func (s *Selector[T]) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.Key() == "" {
				continue
			}
			if err := s.Refresh(); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
		}
	}
}

// Close cancels any fetch in flight and waits for it to return.
func (s *Selector[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

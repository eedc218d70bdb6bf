// Package artifact holds the process-wide churn bundle.
package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"churnguard/ml"
)

// Store loads the bundle once and hands out the current immutable value.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	loadErr error
	current atomic.Pointer[ml.Bundle]

	listenersMu sync.RWMutex
	listeners   []func(*ml.Bundle)
}

func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger.Named("artifact")}
}

// NewStaticStore wraps an already built bundle, mainly for tests and the CLI.
func NewStaticStore(bundle *ml.Bundle) *Store {
	s := &Store{logger: zap.NewNop()}
	s.current.Store(bundle)
	return s
}

func (s *Store) Path() string { return s.path }

// Bundle returns the current bundle, loading it on first use. A failed first load is
// remembered and returned to every later caller.
func (s *Store) Bundle() (*ml.Bundle, error) {
	if b := s.current.Load(); b != nil {
		return b, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.current.Load(); b != nil {
		return b, nil
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	b, err := ml.LoadBundle(s.path)
	if err != nil {
		s.loadErr = err
		s.logger.Error("bundle load failed", zap.String("path", s.path), zap.Error(err))
		return nil, err
	}
	s.current.Store(b)
	s.logger.Info("bundle loaded",
		zap.String("path", s.path),
		zap.String("name", b.Name),
		zap.String("version", b.Version),
		zap.Int("features", len(b.Schema())),
		zap.Float64("threshold", b.Threshold()))
	return b, nil
}

// Reload re-reads the file and swaps the bundle on success. On failure the previous
// bundle stays in place.
func (s *Store) Reload() (*ml.Bundle, error) {
	if s.path == "" {
		return nil, errors.New("store has no artifact path")
	}
	b, err := ml.LoadBundle(s.path)
	if err != nil {
		s.logger.Warn("bundle reload failed, keeping previous", zap.String("path", s.path), zap.Error(err))
		return nil, err
	}
	s.mu.Lock()
	prev := s.current.Swap(b)
	s.loadErr = nil
	s.mu.Unlock()
	if prev != nil && prev.Checksum == b.Checksum {
		return b, nil
	}
	s.logger.Info("bundle reloaded", zap.String("version", b.Version), zap.String("checksum", b.Checksum))
	s.notify(b)
	return b, nil
}

// OnReload registers fn to run after every reload that changes the bundle.
func (s *Store) OnReload(fn func(*ml.Bundle)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(b *ml.Bundle) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, fn := range s.listeners {
		fn(b)
	}
}

// Watch reloads the bundle whenever its file is written or replaced, until ctx ends.
// The parent directory is watched so atomic renames are seen.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				s.Reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("artifact watcher error", zap.Error(err))
			}
		}
	}()
	s.logger.Info("watching bundle for changes", zap.String("path", s.path))
	return nil
}

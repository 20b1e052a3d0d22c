// Package watcher triggers reindexing when template files change on disk.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tsumiki-ai/ragcore/internal/core/ports/driving"
	"github.com/tsumiki-ai/ragcore/internal/logger"
)

// DefaultDebounce is how long a file must stay quiet before it is
// reindexed. Editors fire several write events per save.
const DefaultDebounce = 500 * time.Millisecond

// watchedExtensions are the file types picked up for reindexing.
var watchedExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// Config holds configuration for a Watcher.
type Config struct {
	// Dir is the directory to watch (required).
	Dir string

	// Indexer receives reindex requests for changed files (required).
	Indexer driving.Indexer

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
}

// Watcher monitors a directory and reindexes changed documents.
// The document ID is the file name without its extension.
type Watcher struct {
	fsw      *fsnotify.Watcher
	indexer  driving.Indexer
	dir      string
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher for the configured directory.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watcher: directory is required")
	}
	if cfg.Indexer == nil {
		return nil, fmt.Errorf("watcher: indexer is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watcher: watch %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		fsw:      fsw,
		indexer:  cfg.Indexer,
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		timers:   make(map[string]*time.Timer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. The context bounds
// every reindex call the watcher makes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watchLoop(ctx)
	logger.Info("Watching %s for document changes", w.dir)
}

// Stop ends watching and releases the underlying file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.fsw.Close()
		<-w.done

		// Cancel timers still pending after the loop exits
		w.mu.Lock()
		for path, timer := range w.timers {
			timer.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
	})
	logger.Info("Stopped watching %s", w.dir)
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.scheduleReindex(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// scheduleReindex (re)arms the per-file debounce timer.
func (w *Watcher) scheduleReindex(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.reindex(ctx, path)
	})
}

func (w *Watcher) reindex(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		// The file may have been removed between the event and the
		// debounce firing
		logger.Warn("Skipping reindex of %s: %v", path, err)
		return
	}

	documentID := DocumentID(path)
	logger.Info("Reindexing %s (document %s)", path, documentID)
	if err := w.indexer.Reindex(ctx, documentID, string(content)); err != nil {
		logger.Warn("Reindex of %s failed: %v", documentID, err)
	}
}

// DocumentID derives the document ID from a file path: the base name
// without its extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

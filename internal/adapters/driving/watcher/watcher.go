// Package watcher keeps a directory of PDFs and the document store in
// step: new or changed files are (re)ingested, removed files are deleted.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/core/services"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// DefaultDebounce is how long a path must stay quiet before it is processed.
// Editors and copies emit several writes per save.
const DefaultDebounce = 2 * time.Second

// action is what a settled path needs.
type action int

const (
	actionNone action = iota
	actionIngest
	actionRemove
)

func (a action) String() string {
	switch a {
	case actionIngest:
		return "ingest"
	case actionRemove:
		return "remove"
	default:
		return "none"
	}
}

// Watcher ingests PDFs dropped into a directory.
type Watcher struct {
	dir       string
	ingest    driving.IngestService
	documents driving.DocumentService
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]action
	timers  map[string]*time.Timer
	ready   chan string

	// OnProcessed, when set, is called after each path is handled.
	OnProcessed func(path string, res *driving.IngestResult, err error)
}

// New creates a watcher for dir. A debounce of zero uses DefaultDebounce.
func New(
	dir string, ingest driving.IngestService, documents driving.DocumentService, debounce time.Duration,
) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}
	if ingest == nil || documents == nil {
		return nil, errors.New("watcher: ingest and document services are required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:       abs,
		ingest:    ingest,
		documents: documents,
		debounce:  debounce,
		pending:   make(map[string]action),
		timers:    make(map[string]*time.Timer),
		ready:     make(chan string, 64),
	}, nil
}

// Scan ingests every PDF already in the directory that is not stored yet.
func (w *Watcher) Scan(ctx context.Context) ([]driving.IngestResult, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && isPDF(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, nil
	}

	logger.Info("Scanning %d PDF(s) in %s", len(paths), w.dir)
	results := w.ingest.IngestFiles(ctx, paths)
	for i := range results {
		r := &results[i]
		switch {
		case r.Err == nil:
			logger.Info("Ingested %s (%d chunks)", r.Filename, r.Chunks)
		case errors.Is(r.Err, domain.ErrAlreadyExists):
			logger.Debug("watcher: %s already stored", r.Filename)
		default:
			logger.Warn("watcher: %s: %v", r.Filename, r.Err)
		}
	}
	return results, nil
}

// Run watches the directory until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("Watching %s for PDFs", w.dir)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx)
	}()
	defer func() {
		w.stopTimers()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if act := classify(event); act != actionNone {
				w.schedule(ctx, event.Name, act)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

// classify maps a filesystem event to the action it calls for.
// Renames are reported for the old name, so they count as removals.
func classify(event fsnotify.Event) action {
	if !isPDF(event.Name) || strings.HasPrefix(filepath.Base(event.Name), ".") {
		return actionNone
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return actionRemove
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return actionIngest
	default:
		return actionNone
	}
}

// schedule (re)starts the quiet period for path. The latest action wins.
func (w *Watcher) schedule(ctx context.Context, path string, act action) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = act
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			w.mu.Lock()
			act := w.pending[path]
			delete(w.pending, path)
			delete(w.timers, path)
			w.mu.Unlock()

			res, err := w.process(ctx, path, act)
			if w.OnProcessed != nil {
				w.OnProcessed(path, res, err)
			}
		}
	}
}

// process applies act to path. A changed file replaces the stored document.
func (w *Watcher) process(ctx context.Context, path string, act action) (*driving.IngestResult, error) {
	id := services.DocumentIDForPath(path)
	name := filepath.Base(path)

	// A removed file may have been recreated within the quiet period.
	if act == actionRemove {
		if _, err := os.Stat(path); err == nil {
			act = actionIngest
		}
	}

	switch act {
	case actionRemove:
		if _, err := w.documents.Delete(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			logger.Warn("watcher: remove %s: %v", name, err)
			return nil, err
		}
		logger.Info("Removed %s", name)
		return nil, nil

	case actionIngest:
		if _, err := w.documents.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("watcher: replace %s: %v", name, err)
			return nil, err
		}
		results := w.ingest.IngestFiles(ctx, []string{path})
		res := &results[0]
		if res.Err != nil {
			logger.Warn("watcher: ingest %s: %s: %v", name, domain.ErrorKind(res.Err), res.Err)
			return res, res.Err
		}
		logger.Info("Ingested %s (%d chunks)", name, res.Chunks)
		return res, nil
	}
	return nil, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

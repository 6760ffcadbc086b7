package blueprint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before reporting changed blueprints.
const DefaultDebounce = 500 * time.Millisecond

// FileProvider resolves blueprint ids to files in a directory. The id "web"
// maps to the first of web.yaml, web.yml, web.json or web.cue that exists.
// Parsed graphs are cached until Watch sees their file change; callers must
// not modify returned graphs.
type FileProvider struct {
	dir    string
	parser *Parser
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*engine.ComponentGraph

	watcher *fsnotify.Watcher

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// OnChange, when set, receives the ids invalidated by one settled burst.
	OnChange func(ids []string)
}

// NewFileProvider creates a provider over dir.
func NewFileProvider(dir string, logger zerolog.Logger) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat blueprint directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blueprint path %s is not a directory", dir)
	}

	return &FileProvider{
		dir:    dir,
		parser: NewParser(),
		logger: logger.With().Str("component", "blueprint-provider").Logger(),
		cache:  make(map[string]*engine.ComponentGraph),
	}, nil
}

// GetBlueprint returns the graph for id, or an error matching engine.ErrNotFound.
func (p *FileProvider) GetBlueprint(ctx context.Context, id string) (*engine.ComponentGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, engine.NewValidationError("invalid blueprint id", nil).WithResource(id)
	}

	p.mu.RLock()
	graph, ok := p.cache[id]
	p.mu.RUnlock()
	if ok {
		return graph, nil
	}

	path, ok := p.locate(id)
	if !ok {
		return nil, engine.NewNotFoundError("blueprint", id)
	}

	graph, err := p.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if graph.BlueprintID != id {
		p.logger.Debug().
			Str("blueprint_id", id).
			Str("declared_id", graph.BlueprintID).
			Msg("Blueprint id taken from file name")
		graph.BlueprintID = id
	}

	p.mu.Lock()
	p.cache[id] = graph
	p.mu.Unlock()

	p.logger.Debug().
		Str("blueprint_id", id).
		Str("file", path).
		Int("components", len(graph.Components)).
		Msg("Blueprint loaded")

	return graph, nil
}

// List returns the ids of every blueprint file in the directory, sorted.
func (p *FileProvider) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint directory: %w", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := idFor(entry.Name())
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *FileProvider) locate(id string) (string, bool) {
	for _, ext := range extensions {
		path := filepath.Join(p.dir, id+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// idFor maps a file name to its blueprint id.
func idFor(name string) (string, bool) {
	if _, ok := FormatFor(name); !ok || strings.HasPrefix(name, ".") {
		return "", false
	}
	return strings.TrimSuffix(name, filepath.Ext(name)), true
}

// Invalidate drops the cached graph for id.
func (p *FileProvider) Invalidate(id string) {
	p.mu.Lock()
	delete(p.cache, id)
	p.mu.Unlock()
}

// ClearCache drops every cached graph.
func (p *FileProvider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache = make(map[string]*engine.ComponentGraph)
}

// Watch invalidates cached graphs when their files change. It returns once
// the watcher is running; watching stops when ctx is done or Close is called.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(p.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch blueprint directory: %w", err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	go p.processEvents(ctx, watcher)

	p.logger.Info().
		Str("dir", p.dir).
		Msg("Started watching blueprints")

	return nil
}

// processEvents invalidates on every event and reports changed ids once a
// burst has settled.
func (p *FileProvider) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	delay := p.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
		pending = make(map[string]struct{})
	)

	flush := func() {
		timerMu.Lock()
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		pending = make(map[string]struct{})
		timerMu.Unlock()

		sort.Strings(ids)
		p.logger.Info().Strs("blueprints", ids).Msg("Blueprints changed")
		if p.OnChange != nil {
			p.OnChange(ids)
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id, ok := idFor(filepath.Base(event.Name))
			if !ok {
				continue
			}

			p.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Blueprint file changed")

			p.Invalidate(id)

			timerMu.Lock()
			pending[id] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, flush)
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops watching. It is safe to call without Watch.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	watcher := p.watcher
	p.watcher = nil
	p.mu.Unlock()

	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

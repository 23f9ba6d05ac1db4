package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kadirpekel/ragforge/pkg/detector"
)

// WatchConfig configures a Watcher.
type WatchConfig struct {
	// BasePath is the directory tree to watch, recursively.
	BasePath string
	// DebounceDelay coalesces rapid-fire events (e.g. an editor's
	// write-then-rename save) into a single re-ingest. Default 100ms.
	DebounceDelay time.Duration
	// Meta builds per-file ingestion metadata; nil uses the filename only.
	Meta func(path string) detector.Metadata
}

func (c *WatchConfig) setDefaults() {
	if c.DebounceDelay == 0 {
		c.DebounceDelay = 100 * time.Millisecond
	}
}

// Watcher drives incremental re-ingestion: it watches a directory tree
// with fsnotify and calls IngestSource on the underlying Pipeline
// whenever a watched file is created or written.
//
// Direct port of v2/rag/watcher.go's FileWatcher shape (recursive Add,
// debounce-by-coalescing-into-a-map, Events/Errors select loop), adapted
// to call the ingestion pipeline directly instead of emitting a generic
// DocumentEvent for a caller to interpret.
type Watcher struct {
	fsw      *fsnotify.Watcher
	pipeline *Pipeline
	cfg      WatchConfig

	results chan *Result

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewWatcher constructs a Watcher bound to pipeline.
func NewWatcher(pipeline *Pipeline, cfg WatchConfig) (*Watcher, error) {
	cfg.setDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, pipeline: pipeline, cfg: cfg, results: make(chan *Result, 64)}, nil
}

// Start begins watching cfg.BasePath and every subdirectory, returning a
// channel of ingestion results, one per re-ingested file. The channel is
// closed when Stop is called or ctx is done.
func (w *Watcher) Start(ctx context.Context) (<-chan *Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return w.results, nil
	}

	if err := w.addRecursive(w.cfg.BasePath); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	go w.loop(runCtx)

	return w.results, nil
}

// Stop releases the fsnotify watch and closes the results channel.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.cancel()
	w.running = false
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				slog.Warn("ingest: failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	pending := make(map[string]struct{})
	var mu sync.Mutex
	var timer *time.Timer

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		mu.Unlock()

		for _, p := range paths {
			w.ingestOne(ctx, p)
		}
	}

	defer close(w.results)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			flush()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Chmod == fsnotify.Chmod || ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
				continue // deletions leave the prior version intact (§5); re-ingest covers create/write only
			}

			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if ev.Op&fsnotify.Create == fsnotify.Create {
					if err := w.fsw.Add(ev.Name); err != nil {
						slog.Warn("ingest: failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
				continue
			}

			mu.Lock()
			pending[ev.Name] = struct{}{}
			mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.cfg.DebounceDelay, flush)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("ingest: watcher error", "path", w.cfg.BasePath, "error", err)
		}
	}
}

func (w *Watcher) ingestOne(ctx context.Context, path string) {
	meta := detector.Metadata{Filename: filepath.Base(path)}
	if w.cfg.Meta != nil {
		meta = w.cfg.Meta(path)
	}
	res, err := w.pipeline.IngestSource(ctx, path, meta)
	if err != nil && res == nil {
		slog.Error("ingest: watch-triggered ingest failed", "path", path, "error", err)
		return
	}
	select {
	case w.results <- res:
	case <-ctx.Done():
	}
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// offlineName is the adapter name used in observations and trust lookups.
const offlineName = "offline_corpus_cache"

// offlineSnapshot is the on-disk format of the pre-built lookup table:
// corpus coordinates ("sura:aya:position") mapped to Arabic roots.
type offlineSnapshot struct {
	Metadata struct {
		Source     string `json:"source"`
		TotalWords int    `json:"total_words"`
		BuiltAt    string `json:"built_at"`
	} `json:"metadata"`
	Roots map[string]string `json:"roots"`
}

// Offline answers lookups from a pre-built corpus snapshot. It performs no
// network I/O and is safe for unlimited concurrent readers. The snapshot
// file is watched and hot-reloaded when it is rebuilt.
type Offline struct {
	path    string
	log     *zap.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	roots map[string]string
}

// NewOffline loads the snapshot at path. A missing file yields an empty
// table rather than an error: extraction degrades to the network tiers.
func NewOffline(path string, log *zap.Logger) *Offline {
	o := &Offline{
		path:  path,
		log:   log,
		roots: map[string]string{},
	}
	if err := o.reload(); err != nil {
		log.Warn("offline snapshot unavailable",
			zap.String("path", path), zap.Error(err))
	}
	return o
}

// Name implements Source.
func (o *Offline) Name() string { return offlineName }

// Kind implements Source.
func (o *Offline) Kind() Kind { return KindOffline }

// Len returns the number of cached coordinates.
func (o *Offline) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.roots)
}

// Fetch implements Source. It succeeds only when a location is given and
// present in the table.
func (o *Offline) Fetch(_ context.Context, word string, loc *Location) Observation {
	start := time.Now()
	if loc == nil {
		return failure(offlineName, KindOffline, word, start,
			fmt.Errorf("%w: corpus location required", ErrNotFound))
	}
	o.mu.RLock()
	root, ok := o.roots[loc.Key()]
	o.mu.RUnlock()
	if !ok {
		return failure(offlineName, KindOffline, word, start,
			fmt.Errorf("%w: %s not in snapshot", ErrNotFound, loc.Key()))
	}
	return hit(offlineName, KindOffline, word, root, start)
}

// Watch starts hot-reloading the snapshot when the file changes. It returns
// immediately; reloads happen on a background goroutine until ctx is done.
func (o *Offline) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors and snapshot builders replace the file,
	// which drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(o.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(o.path), err)
	}
	o.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != o.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := o.reload(); err != nil {
					o.log.Warn("offline snapshot reload failed", zap.Error(err))
					continue
				}
				o.log.Info("offline snapshot reloaded",
					zap.String("path", o.path), zap.Int("entries", o.Len()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				o.log.Warn("offline snapshot watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (o *Offline) reload() error {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return err
	}
	var snap offlineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	o.mu.Lock()
	o.roots = snap.Roots
	if o.roots == nil {
		o.roots = map[string]string{}
	}
	o.mu.Unlock()
	return nil
}

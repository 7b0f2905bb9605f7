package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/globfs/globd/glob"
)

// Resolution is one cached resolver outcome: the matched paths plus the
// include patterns that matched nothing, so warn-strictness reporting
// replays on hits instead of firing only for the first resolution.
type Resolution struct {
	Paths  []string
	Warned []string
}

// ResolveCache memoizes resolutions keyed by a request fingerprint and
// flushes on any filesystem event under the serve root. Only traversal
// is short-circuited; packing always re-reads contents.
type ResolveCache struct {
	logger  log.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	entries map[uint64]Resolution
	// generation increments on every flush. A resolution computed before
	// a flush must not be stored after it: the entry would describe the
	// pre-change tree and no later event would ever remove it.
	generation uint64

	quitch chan struct{}
}

// NewResolveCache watches root and all its subdirectories and starts the
// invalidation loop.
func NewResolveCache(root string, logger log.Logger) (*ResolveCache, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, err
	}

	c := &ResolveCache{
		logger:  logger,
		watcher: watcher,
		entries: make(map[uint64]Resolution),
		quitch:  make(chan struct{}),
	}

	go c.loop()
	return c, nil
}

func (c *ResolveCache) loop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}

			level.Debug(c.logger).Log("msg", "tree changed, flushing resolve cache", "event", event.Op, "name", event.Name)
			c.Invalidate()

			// New directories need their own watch to keep coverage complete.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := c.watcher.Add(event.Name); err != nil {
						level.Warn(c.logger).Log("msg", "failed to watch new directory", "name", event.Name, "err", err)
					}
				}
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			level.Warn(c.logger).Log("msg", "watch error", "err", err)
		case <-c.quitch:
			return
		}
	}
}

// Get returns a cached resolution for the fingerprint key.
func (c *ResolveCache) Get(key uint64) (Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res, ok := c.entries[key]
	return res, ok
}

// Generation returns the current flush generation. Callers capture it
// before resolving and hand it back to Put.
func (c *ResolveCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generation
}

// Put stores a resolution under the fingerprint key. The store is
// dropped when the cache flushed after generation was captured: the
// resolution saw the pre-flush tree.
func (c *ResolveCache) Put(key uint64, res Resolution, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	c.entries[key] = res
}

// Invalidate drops every cached resolution and moves the generation.
func (c *ResolveCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint64]Resolution)
	c.generation++
}

// Len reports the number of cached resolutions.
func (c *ResolveCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *ResolveCache) Close() error {
	close(c.quitch)
	return c.watcher.Close()
}

// globsFingerprint hashes the canonical encoding of a request's patterns
// and policy. Field tags and separators keep distinct requests from
// colliding on concatenation.
func globsFingerprint(globs glob.PathGlobs) uint64 {
	d := xxhash.New()

	for _, pattern := range globs.Include {
		d.WriteString("i\x00")
		d.WriteString(pattern)
		d.WriteString("\x00")
	}
	for _, pattern := range globs.Exclude {
		d.WriteString("e\x00")
		d.WriteString(pattern)
		d.WriteString("\x00")
	}
	d.Write([]byte{byte(globs.Strictness), byte(globs.Conjunction)})

	return d.Sum64()
}

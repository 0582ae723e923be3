package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vitro/engine/core"
)

// Watcher reloads the config file when it changes on disk. Only
// runtime-safe settings are applied live (log level); everything else is
// reported as requiring a restart.
type Watcher struct {
	path    string
	current *Config

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewWatcher(path string, initial *Config) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		current:  initial,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}

	// Watch the directory, not the file: editors replace files on save,
	// which drops a plain file watch.
	dir := filepath.Dir(path)
	if err := fsWatch.Add(dir); err != nil {
		fsWatch.Close()
		return nil, err
	}

	go w.start()
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.current
}

func (w *Watcher) Close() error {
	if w.isClosed {
		return nil
	}
	w.isClosed = true
	close(w.done)
	return nil
}

func (w *Watcher) start() {
	for {
		select {
		case e := <-w.fsnotify.Events:
			if filepath.Clean(e.Name) != filepath.Clean(w.path) {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case e := <-w.fsnotify.Errors:
			core.LogError(e.Error())

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		core.LogWarn("config reload failed, keeping previous: %s", err)
		return
	}

	w.mutex.Lock()
	prev := w.current
	w.current = next
	w.mutex.Unlock()

	if prev.Renderer.LogLevel != next.Renderer.LogLevel {
		core.LogSetLevel(next.Renderer.LogLevel)
		core.LogInfo("log level now %s", next.Renderer.LogLevel)
	}
	if prev.Descriptors.PoolSetCapacity != next.Descriptors.PoolSetCapacity {
		core.LogWarn("pool_set_capacity changed %d -> %d, takes effect on restart",
			prev.Descriptors.PoolSetCapacity, next.Descriptors.PoolSetCapacity)
	}
	if prev.Renderer.PushDescriptors != next.Renderer.PushDescriptors ||
		prev.Renderer.UpdateTemplates != next.Renderer.UpdateTemplates {
		core.LogWarn("descriptor path toggles changed, take effect on restart")
	}
}

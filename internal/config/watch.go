package config

import (
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/orizon-lang/heapkeeper/internal/gclog"
)

// Manager holds the live tunables for a running simulation and reloads
// them from disk whenever the backing file changes, via an OS-native
// fsnotify watcher.
type Manager struct {
	current atomic.Pointer[Tunables]
	path    string
	watcher *fsnotify.Watcher
	log     *zap.Logger
}

// NewManager loads path once synchronously and starts watching it for
// further writes. The returned Manager owns the watcher; call Close to
// stop the background goroutine.
func NewManager(path string) (*Manager, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(path); err != nil {
		_ = w.Close()

		return nil, err
	}

	m := &Manager{path: path, watcher: w, log: gclog.Named("config")}
	m.current.Store(&t)

	go m.loop()

	return m, nil
}

// Current returns the most recently loaded tunables. Safe to call
// concurrently with a reload in progress.
func (m *Manager) Current() Tunables {
	return *m.current.Load()
}

// Close stops the watcher goroutine.
func (m *Manager) Close() error {
	return m.watcher.Close()
}

func (m *Manager) loop() {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			m.reload()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}

			m.log.Warn("config watch error", zap.Error(err))
		}
	}
}

func (m *Manager) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Warn("config reload: read failed", zap.String("path", m.path), zap.Error(err))

		return
	}

	t, err := Parse(data)
	if err != nil {
		m.log.Warn("config reload: rejected", zap.String("path", m.path), zap.Error(err))

		return
	}

	m.current.Store(&t)
	m.log.Info("config reloaded", zap.String("path", m.path))
}

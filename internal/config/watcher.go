package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the freshly parsed config, or the error that
// prevented loading it.
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	fsw      *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewWatcher starts watching path. The parent directory is watched so that
// editors which replace the file by rename are still noticed.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()

		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		path:     abs,
		debounce: debounce,
		onReload: onReload,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)

	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer

	fire := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}

			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != w.path {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}
		case <-fire:
			// Moved or deleted: wait for the file to come back.
			if _, err := os.Stat(w.path); err != nil {
				continue
			}

			w.onReload(ReadConfig(w.path))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.onReload(nil, fmt.Errorf("file watcher: %w", err))
		}
	}
}

// Close stops watching and waits for the watcher goroutine to exit.
func (w *Watcher) Close() error {
	var err error

	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsw.Close()
	})

	return err
}

// =============================================================================
// watch.go - Auto-Start on Rebuild
// =============================================================================
//
// With --watch file.prg the CLI watches a program image and autostarts it
// in the emulator every time it is rewritten. The parent directory is
// watched rather than the file, because assemblers and editors often
// replace the file instead of writing it in place. Bursts of events from
// one rebuild are collapsed into a single autostart.
//
// =============================================================================

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is the quiet period after the last write before the
// program is autostarted.
const watchDebounce = 200 * time.Millisecond

// autoStarter loads a program into the emulator.
type autoStarter interface {
	AutoStart(filename string) error
}

// programWatcher autostarts a program whenever its file changes.
type programWatcher struct {
	path    string
	starter autoStarter
	logger  *slog.Logger
	w       *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
}

// watchProgram starts watching path. Close stops it.
func watchProgram(path string, starter autoStarter, logger *slog.Logger) (*programWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	pw := &programWatcher{
		path:    abs,
		starter: starter,
		logger:  logger,
		w:       w,
		done:    make(chan struct{}),
	}
	go pw.loop()
	return pw, nil
}

func (pw *programWatcher) loop() {
	defer close(pw.done)
	for {
		select {
		case ev, ok := <-pw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != pw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pw.schedule()
			}
		case err, ok := <-pw.w.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("watch error", "path", pw.path, "error", err)
		}
	}
}

// schedule (re)arms the debounce timer.
func (pw *programWatcher) schedule() {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(watchDebounce, pw.start)
}

func (pw *programWatcher) start() {
	pw.logger.Info("program changed, autostarting", "path", pw.path)
	if err := pw.starter.AutoStart(pw.path); err != nil {
		pw.logger.Warn("autostart failed", "path", pw.path, "error", err)
	}
}

// Close stops watching and cancels a pending autostart.
func (pw *programWatcher) Close() error {
	err := pw.w.Close()
	<-pw.done
	pw.mu.Lock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.mu.Unlock()
	return err
}

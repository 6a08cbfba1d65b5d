package renderer

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/prismatik/lumen/engine/core"
)

// ShaderWatcher watches a directory of compiled shader binaries and invokes
// a callback when one is written, so the application can rebuild and prewarm
// the affected pipelines without restarting.
type ShaderWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(path string)
	done     chan struct{}
}

// WatchShaders starts watching dir for .spv writes. onChange runs on the
// watcher goroutine; callers needing device access must forward to the
// render thread themselves.
func WatchShaders(dir string, onChange func(path string)) (*ShaderWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	sw := &ShaderWatcher{
		watcher:  w,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go sw.run()
	core.LogInfo("watching %s for shader changes", dir)
	return sw, nil
}

func (sw *ShaderWatcher) run() {
	defer close(sw.done)
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if strings.ToLower(filepath.Ext(event.Name)) != ".spv" {
				continue
			}
			core.LogInfo("shader changed: %s", event.Name)
			sw.onChange(event.Name)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("shader watcher: %v", err)
		}
	}
}

func (sw *ShaderWatcher) Close() error {
	err := sw.watcher.Close()
	<-sw.done
	return err
}

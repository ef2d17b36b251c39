// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ArrivalHandler is called with each debounced batch of new files. It
// returns the paths it wrote; events for them are never reported, so
// outputs landing in the watched directory are not cleaned again whatever
// they are named.
type ArrivalHandler func(ctx context.Context, paths []string) (written []string)

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Pattern selects files by base name. Default: "*.cube".
	Pattern string

	// Ignore lists base-name globs never reported, so that outputs
	// written into the watched directory are not cleaned again.
	// Default: "*_cleaned*", ".*".
	Ignore []string

	// Debounce is how long a file must be quiet before it is reported.
	// Writers produce many events per file. Default: 2s.
	Debounce time.Duration

	// BufferSize is the size of the event buffer. Default: 1000.
	BufferSize int

	// Logger receives watcher errors. Nil discards.
	Logger *slog.Logger
}

// DefaultWatchOptions returns sensible defaults.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Pattern:    "*.cube",
		Ignore:     []string{"*_cleaned*", ".*"},
		Debounce:   2 * time.Second,
		BufferSize: 1000,
	}
}

// Watcher reports archive files arriving in a directory.
//
// # Description
//
// Created and written files matching Pattern are collected; once no event
// has arrived for the debounce window the batch is deduplicated and passed
// to the handler. Removals and renames away are not reported, and neither
// are paths an earlier handler call reported writing.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine,
// so batches never overlap.
type Watcher struct {
	dir     string
	opts    WatchOptions
	handler ArrivalHandler
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	arrivals chan string
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher on dir. Call Start to begin.
func NewWatcher(dir string, handler ArrivalHandler, opts *WatchOptions) (*Watcher, error) {
	o := DefaultWatchOptions()
	if opts != nil {
		if opts.Pattern != "" {
			o.Pattern = opts.Pattern
		}
		if opts.Ignore != nil {
			o.Ignore = opts.Ignore
		}
		if opts.Debounce > 0 {
			o.Debounce = opts.Debounce
		}
		if opts.BufferSize > 0 {
			o.BufferSize = opts.BufferSize
		}
		o.Logger = opts.Logger
	}
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	if _, err := filepath.Match(o.Pattern, ""); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		dir:      dir,
		opts:     o,
		handler:  handler,
		watcher:  fw,
		logger:   logger,
		arrivals: make(chan string, o.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Both goroutines exit on Stop or when ctx is
// cancelled. Stop flushes a pending batch; cancellation drops it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.watching = true

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching and waits for the handler to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Wanted reports whether a path would be passed to the handler.
func (w *Watcher) Wanted(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.Ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return false
		}
	}
	ok, _ := filepath.Match(w.opts.Pattern, base)
	return ok
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Wanted(event.Name) {
				continue
			}
			select {
			case w.arrivals <- event.Name:
			default:
				w.logger.Warn("watch buffer full, dropping event", slog.String("file", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	var batch []string
	var timer *time.Timer
	var timerC <-chan time.Time

	written := make(map[string]bool)
	flush := func() {
		var paths []string
		for _, p := range dedupe(batch) {
			if !written[filepath.Clean(p)] {
				paths = append(paths, p)
			}
		}
		batch = batch[:0]
		if len(paths) > 0 {
			for _, p := range w.handler(ctx, paths) {
				written[filepath.Clean(p)] = true
			}
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			flush()
			return
		case path := <-w.arrivals:
			batch = append(batch, path)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the first occurrence of each path.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Package watch monitors a transcript directory tree and tells subscribers
// which session changed. Raw filesystem events are noisy: a single agent
// turn produces dozens of writes. The watcher first waits for a write to
// stabilize, then debounces per session, so a burst collapses into one
// subscriber callback.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// EventType distinguishes a newly discovered transcript from a change to a
// known one.
type EventType string

const (
	EventAdd    EventType = "add"
	EventChange EventType = "change"
)

// Callback receives one debounced event per session burst.
type Callback func(sessionID string, event EventType)

// Unsubscribe removes a previously registered callback.
type Unsubscribe func()

const (
	// DefaultStabilize is the quiet period after the last raw write before
	// a file is considered fully written.
	DefaultStabilize = 200 * time.Millisecond
	// DefaultDebounce is the per-session quiet period before an event is
	// delivered to subscribers.
	DefaultDebounce = 500 * time.Millisecond

	transcriptExt = ".jsonl"
	// sidechainPrefix marks transcripts of background side-channel agents,
	// which are not user sessions and are ignored entirely.
	sidechainPrefix = "agent-"
)

// Options configures a Watcher. Zero values get defaults.
type Options struct {
	Root      string
	Stabilize time.Duration
	Debounce  time.Duration
	Clock     Clock
	Logger    *log.Logger
}

// Watcher monitors Root for transcript files two levels deep
// (project directory → transcript file). Pre-existing files are ignored at
// startup; only subsequent changes produce events.
type Watcher struct {
	root      string
	stabilize time.Duration
	debounce  time.Duration
	clock     Clock
	logger    *log.Logger

	mu         sync.Mutex
	running    bool
	fw         *fsnotify.Watcher
	subs       map[int]Callback
	nextSub    int
	known      map[string]struct{} // transcript paths seen so far
	pendingAdd map[string]bool     // session id → burst contained an add
	settle     *Dispatcher[string]
	emit       *Dispatcher[string]
	done       chan struct{}
}

// New creates a stopped Watcher for the given options.
func New(opts Options) *Watcher {
	if opts.Stabilize <= 0 {
		opts.Stabilize = DefaultStabilize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Watcher{
		root:      opts.Root,
		stabilize: opts.Stabilize,
		debounce:  opts.Debounce,
		clock:     opts.Clock,
		logger:    opts.Logger,
		subs:      make(map[int]Callback),
	}
}

// Subscribe registers a callback for debounced session events. Safe to
// call whether or not the watcher is running.
func (w *Watcher) Subscribe(cb Callback) Unsubscribe {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextSub
	w.nextSub++
	w.subs[id] = cb
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Start begins monitoring. Calling Start on a running watcher is a no-op
// with a warning.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("watcher already running", "root", w.root)
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.root); err != nil {
		fw.Close()
		return fmt.Errorf("watch root %s: %w", w.root, err)
	}

	w.known = make(map[string]struct{})
	w.pendingAdd = make(map[string]bool)

	// Watch each project directory and remember its existing transcripts so
	// they only ever report "change".
	entries, err := os.ReadDir(w.root)
	if err != nil {
		fw.Close()
		return fmt.Errorf("read root %s: %w", w.root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(w.root, entry.Name())
		if err := fw.Add(dir); err != nil {
			w.logger.Error("cannot watch project directory", "dir", dir, "err", err)
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Error("cannot list project directory", "dir", dir, "err", err)
			continue
		}
		for _, f := range files {
			path := filepath.Join(dir, f.Name())
			if !f.IsDir() && eligibleTranscript(path) {
				w.known[path] = struct{}{}
			}
		}
	}

	w.fw = fw
	w.settle = NewDispatcher[string](w.stabilize, w.clock, w.onSettled)
	w.emit = NewDispatcher[string](w.debounce, w.clock, w.onEmit)
	w.done = make(chan struct{})
	w.running = true

	go w.run(fw, w.done)

	w.logger.Info("watching transcripts", "root", w.root,
		"stabilize", w.stabilize, "debounce", w.debounce)
	return nil
}

// Stop tears the watcher down, cancelling all pending debounce timers
// without firing them. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fw, done := w.fw, w.done
	settle, emit := w.settle, w.emit
	w.fw = nil
	w.mu.Unlock()

	settle.CancelAll()
	emit.CancelAll()
	fw.Close()
	<-done
}

// run drains filesystem events until the underlying watcher closes.
func (w *Watcher) run(fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "err", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// A new project directory appearing under the root needs its own watch.
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			fw := w.fw
			w.mu.Unlock()
			if fw != nil {
				if err := fw.Add(event.Name); err != nil {
					w.logger.Error("cannot watch new project directory",
						"dir", event.Name, "err", err)
				}
			}
			return
		}
	}

	if !eligibleTranscript(event.Name) {
		return
	}
	w.settle.Trigger(event.Name)
}

// onSettled runs once a file has gone quiet for the stabilization window.
// It classifies the event as add or change and hands the session to the
// per-session debouncer.
func (w *Watcher) onSettled(path string) {
	sessionID := strings.TrimSuffix(filepath.Base(path), transcriptExt)

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	_, existed := w.known[path]
	w.known[path] = struct{}{}
	if !existed {
		w.pendingAdd[sessionID] = true
	} else if _, ok := w.pendingAdd[sessionID]; !ok {
		w.pendingAdd[sessionID] = false
	}
	w.mu.Unlock()

	w.emit.Trigger(sessionID)
}

// onEmit delivers the single debounced event for a session burst.
func (w *Watcher) onEmit(sessionID string) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	typ := EventChange
	if w.pendingAdd[sessionID] {
		typ = EventAdd
	}
	delete(w.pendingAdd, sessionID)
	cbs := make([]Callback, 0, len(w.subs))
	for _, cb := range w.subs {
		cbs = append(cbs, cb)
	}
	w.mu.Unlock()

	for _, cb := range cbs {
		cb(sessionID, typ)
	}
}

// eligibleTranscript reports whether path names a watchable session
// transcript: right extension, not a side-channel agent file.
func eligibleTranscript(path string) bool {
	if filepath.Ext(path) != transcriptExt {
		return false
	}
	return !strings.HasPrefix(filepath.Base(path), sidechainPrefix)
}

// Package cache holds the in-memory session state derived from local
// transcript files. The cache has no TTL: the filesystem watcher gives it
// a perfect invalidation signal, so entries live until the transcript
// changes and are recomputed on the next read.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ccdeck/ccdeck/internal/core/models"
	"github.com/ccdeck/ccdeck/internal/core/status"
	"github.com/ccdeck/ccdeck/internal/core/watch"
	"github.com/ccdeck/ccdeck/pkg/transcript"
)

// ParseFunc reads a transcript file into records. Injectable so tests can
// count parses and fault-inject.
type ParseFunc func(path string) ([]transcript.Record, error)

// AliveFunc reports whether the agent process for a session is currently
// running. Supplied by a process-management collaborator.
type AliveFunc func(sessionID string) bool

// Options configures a LocalCache.
type Options struct {
	Root   string
	Parse  ParseFunc
	Alive  AliveFunc
	Logger *log.Logger
}

// LocalCache is the event-invalidated view of local sessions.
type LocalCache struct {
	root   string
	parse  ParseFunc
	alive  AliveFunc
	logger *log.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is one session's cached recompute result. Messages are owned by
// the cache and replaced wholesale on recompute.
type entry struct {
	messages []models.Message
	record   models.SessionRecord
}

// New creates a LocalCache over the given transcript root.
func New(opts Options) *LocalCache {
	if opts.Parse == nil {
		opts.Parse = transcript.ParseFile
	}
	if opts.Alive == nil {
		opts.Alive = func(string) bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &LocalCache{
		root:    opts.Root,
		parse:   opts.Parse,
		alive:   opts.Alive,
		logger:  opts.Logger,
		entries: make(map[string]*entry),
	}
}

// Bind wires watcher events into cache invalidation. This is the cache's
// only invalidation trigger besides explicit Invalidate calls.
func (c *LocalCache) Bind(w *watch.Watcher) watch.Unsubscribe {
	return w.Subscribe(func(sessionID string, _ watch.EventType) {
		c.Invalidate(sessionID)
	})
}

// Invalidate drops the cached state for a session so the next read
// re-parses the transcript.
func (c *LocalCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Messages returns the session's message list, recomputing on a cache
// miss. A non-zero since filters to messages strictly after that instant.
func (c *LocalCache) Messages(sessionID string, since time.Time) ([]models.Message, error) {
	e, err := c.load(sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Message, 0, len(e.messages))
	for _, m := range e.messages {
		if !since.IsZero() && !m.Timestamp.After(since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Status returns the session's inferred status. Liveness can change
// without a transcript write, so the status is derived fresh on every call
// from the cached messages.
func (c *LocalCache) Status(sessionID string) (models.Status, error) {
	e, err := c.load(sessionID)
	if err != nil {
		return models.StatusIdle, err
	}
	return status.Detect(e.messages, c.alive(sessionID)), nil
}

// Session returns the derived record for one session.
func (c *LocalCache) Session(sessionID string) (models.SessionRecord, error) {
	e, err := c.load(sessionID)
	if err != nil {
		return models.SessionRecord{}, err
	}
	rec := e.record
	rec.Status = status.Detect(e.messages, c.alive(sessionID))
	return rec, nil
}

// Sessions scans the transcript root and returns a record for every local
// session, most recent activity first.
func (c *LocalCache) Sessions() ([]models.SessionRecord, error) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript root: %w", err)
	}

	var records []models.SessionRecord
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(c.root, dir.Name()))
		if err != nil {
			c.logger.Error("cannot list project directory", "dir", dir.Name(), "err", err)
			continue
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || filepath.Ext(name) != ".jsonl" || strings.HasPrefix(name, "agent-") {
				continue
			}
			sessionID := strings.TrimSuffix(name, ".jsonl")
			rec, err := c.Session(sessionID)
			if err != nil {
				c.logger.Error("cannot load session", "session", sessionID, "err", err)
				continue
			}
			if rec.MessageCount == 0 {
				continue
			}
			records = append(records, rec)
		}
	}

	models.SortByActivity(records)
	return records, nil
}

// load returns the cached entry for a session, recomputing it from the
// transcript on a miss. A concurrent invalidation simply means the next
// read re-parses again; results are eventually consistent, never torn.
func (c *LocalCache) load(sessionID string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.entries[sessionID]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := c.recompute(sessionID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[sessionID] = e
	c.mu.Unlock()
	return e, nil
}

func (c *LocalCache) recompute(sessionID string) (*entry, error) {
	path, projectPath := c.findTranscript(sessionID)

	var records []transcript.Record
	if path != "" {
		var err error
		records, err = c.parse(path)
		if err != nil {
			return nil, fmt.Errorf("parse session %s: %w", sessionID, err)
		}
	}

	meta := transcript.SessionMetadata(records)
	if projectPath == "" {
		projectPath = transcript.WorkingDirectory(records)
	}

	return &entry{
		messages: transcript.TransformToMessages(records, sessionID),
		record: models.SessionRecord{
			ID:             sessionID,
			ProjectPath:    projectPath,
			StartedAt:      meta.StartedAt,
			LastActivityAt: meta.LastActivityAt,
			MessageCount:   meta.MessageCount,
			Source:         models.SourceLocal,
			Preview:        transcript.FirstMessagePreview(records, 0),
		},
	}, nil
}

// findTranscript locates the session's transcript file under the root and
// decodes the owning project path. A missing transcript is not an error:
// it parses as zero records.
func (c *LocalCache) findTranscript(sessionID string) (path, projectPath string) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		return "", ""
	}
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		candidate := filepath.Join(c.root, dir.Name(), sessionID+".jsonl")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, decodeProjectDir(dir.Name())
		}
	}
	return "", ""
}

// decodeProjectDir reverses the path encoding used by project directory
// names: "-home-dev-invoice" becomes "/home/dev/invoice". Names without
// the leading dash cannot be decoded and yield "".
func decodeProjectDir(name string) string {
	if !strings.HasPrefix(name, "-") {
		return ""
	}
	return "/" + strings.ReplaceAll(name[1:], "-", "/")
}

package remote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ccdeck/ccdeck/internal/core/models"
	"github.com/ccdeck/ccdeck/internal/core/status"
	"github.com/ccdeck/ccdeck/pkg/transcript"
)

const (
	// DefaultSessionTTL bounds how stale a cached session list may get.
	DefaultSessionTTL = 60 * time.Second
	// DefaultMessageTTL bounds how stale a cached message list may get.
	DefaultMessageTTL = 30 * time.Second
)

// SessionsResult carries a session-list response across the cache
// boundary. Remote failures set Err instead of being returned as a Go
// error; Sessions then holds the last known data, if any.
type SessionsResult struct {
	Sessions []models.SessionRecord
	Cached   bool
	Err      error
}

// MessagesResult is the message-list counterpart of SessionsResult.
type MessagesResult struct {
	Messages []models.Message
	Status   models.Status
	Cached   bool
	Err      error
}

// LocalProvider is the slice of the local cache the merge layer reads.
type LocalProvider interface {
	Sessions() ([]models.SessionRecord, error)
}

// Options configures a Cache.
type Options struct {
	Client     Client
	Local      LocalProvider
	SessionTTL time.Duration
	MessageTTL time.Duration
	Now        func() time.Time
	Logger     *log.Logger
}

// Cache is the TTL-gated view of remote sessions plus the merge layer
// that folds it together with the local view.
type Cache struct {
	client     Client
	local      LocalProvider
	sessionTTL time.Duration
	messageTTL time.Duration
	now        func() time.Time
	logger     *log.Logger

	mu           sync.Mutex
	projects     models.CacheEntry[[]Project]
	sessionLists map[string]models.CacheEntry[[]models.SessionRecord]
	sessions     map[string]models.CacheEntry[models.SessionRecord]
	messages     map[string]models.CacheEntry[messagesValue]
}

type messagesValue struct {
	messages []models.Message
	status   models.Status
}

// NewCache creates a remote cache over the given backend client.
func NewCache(opts Options) *Cache {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = DefaultMessageTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Cache{
		client:       opts.Client,
		local:        opts.Local,
		sessionTTL:   opts.SessionTTL,
		messageTTL:   opts.MessageTTL,
		now:          opts.Now,
		logger:       opts.Logger,
		sessionLists: make(map[string]models.CacheEntry[[]models.SessionRecord]),
		sessions:     make(map[string]models.CacheEntry[models.SessionRecord]),
		messages:     make(map[string]models.CacheEntry[messagesValue]),
	}
}

// SessionsForProject returns the remote sessions of one project, served
// from cache while the entry is fresh. A fetch failure never evicts an
// existing entry: the result carries both the error and the stale data.
func (c *Cache) SessionsForProject(ctx context.Context, projectID string) SessionsResult {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.sessionLists[projectID]
	if ok && entry.Fresh(now, c.sessionTTL) {
		c.mu.Unlock()
		return SessionsResult{Sessions: entry.Value, Cached: true}
	}
	c.mu.Unlock()

	summaries, err := c.client.Sessions(ctx, projectID)
	if err != nil {
		c.logger.Error("remote session list fetch failed", "project", projectID, "err", err)
		if ok {
			return SessionsResult{Sessions: entry.Value, Cached: true, Err: err}
		}
		return SessionsResult{Err: err}
	}

	records := make([]models.SessionRecord, 0, len(summaries))
	for _, s := range summaries {
		records = append(records, models.SessionRecord{
			ID:             s.ID,
			ProjectPath:    decodeProjectID(projectID),
			StartedAt:      s.StartedAt,
			LastActivityAt: s.LastActivityAt,
			MessageCount:   s.MessageCount,
			Status:         models.StatusIdle,
			Source:         models.SourceRemote,
			Preview:        s.Preview,
		})
	}

	c.mu.Lock()
	c.sessionLists[projectID] = models.CacheEntry[[]models.SessionRecord]{Value: records, FetchedAt: now}
	for _, rec := range records {
		c.sessions[rec.ID] = models.CacheEntry[models.SessionRecord]{Value: rec, FetchedAt: now}
	}
	c.mu.Unlock()

	return SessionsResult{Sessions: records}
}

// SessionMessages returns one remote session's messages and inferred
// status, served from cache while fresh.
func (c *Cache) SessionMessages(ctx context.Context, sessionID, projectID string) MessagesResult {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.messages[sessionID]
	if ok && entry.Fresh(now, c.messageTTL) {
		c.mu.Unlock()
		return MessagesResult{Messages: entry.Value.messages, Status: entry.Value.status, Cached: true}
	}
	c.mu.Unlock()

	records, err := c.client.Records(ctx, sessionID, projectID)
	if err != nil {
		c.logger.Error("remote message fetch failed", "session", sessionID, "err", err)
		if ok {
			return MessagesResult{Messages: entry.Value.messages, Status: entry.Value.status, Cached: true, Err: err}
		}
		return MessagesResult{Status: models.StatusIdle, Err: err}
	}

	msgs := transcript.TransformToMessages(records, sessionID)
	// The backend exposes no liveness signal, so the status is the coarse
	// remote heuristic, not ground truth.
	st := status.DetectRemote(msgs, now)

	c.mu.Lock()
	c.messages[sessionID] = models.CacheEntry[messagesValue]{
		Value:     messagesValue{messages: msgs, status: st},
		FetchedAt: now,
	}
	c.mu.Unlock()

	return MessagesResult{Messages: msgs, Status: st}
}

// RecentSessions fans out to every known remote project concurrently,
// merges the results with the local view, and returns the most recently
// active sessions up to limit. Per-project failures are isolated: one slow
// or broken project never hides the others.
func (c *Cache) RecentSessions(ctx context.Context, limit int) []models.SessionRecord {
	projects := c.listProjects(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var remoteSessions []models.SessionRecord

	for _, p := range projects {
		wg.Add(1)
		go func(projectID string) {
			defer wg.Done()
			result := c.SessionsForProject(ctx, projectID)
			if result.Err != nil && result.Sessions == nil {
				return
			}
			mu.Lock()
			remoteSessions = append(remoteSessions, result.Sessions...)
			mu.Unlock()
		}(p.EncodedPath)
	}
	wg.Wait()

	var localSessions []models.SessionRecord
	if c.local != nil {
		var err error
		localSessions, err = c.local.Sessions()
		if err != nil {
			c.logger.Error("local session scan failed", "err", err)
		}
	}

	merged := MergeSessions(localSessions, remoteSessions)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// listProjects returns the cached project list, refreshing it when stale.
// On failure the stale list keeps serving.
func (c *Cache) listProjects(ctx context.Context) []Project {
	now := c.now()

	c.mu.Lock()
	entry := c.projects
	c.mu.Unlock()
	if entry.Fresh(now, c.sessionTTL) {
		return entry.Value
	}

	projects, err := c.client.Projects(ctx)
	if err != nil {
		c.logger.Error("remote project list fetch failed", "err", err)
		return entry.Value
	}

	c.mu.Lock()
	c.projects = models.CacheEntry[[]Project]{Value: projects, FetchedAt: now}
	c.mu.Unlock()
	return projects
}

// Health checks backend availability.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Health(ctx)
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = models.CacheEntry[[]Project]{}
	c.sessionLists = make(map[string]models.CacheEntry[[]models.SessionRecord])
	c.sessions = make(map[string]models.CacheEntry[models.SessionRecord])
	c.messages = make(map[string]models.CacheEntry[messagesValue])
}

// InvalidateProject drops the cached session list for one project.
func (c *Cache) InvalidateProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessionLists, projectID)
}

// InvalidateSession drops the cached state for one session.
func (c *Cache) InvalidateSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	delete(c.messages, sessionID)
}

// MergeSessions combines the local and remote session views into one
// de-duplicated, recency-ordered list. Local wins on id collision: local
// data comes straight from the transcript on disk and is fresher than
// anything the TTL cache holds.
func MergeSessions(local, remote []models.SessionRecord) []models.SessionRecord {
	merged := make([]models.SessionRecord, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local))

	for _, rec := range local {
		rec.Source = models.SourceLocal
		merged = append(merged, rec)
		seen[rec.ID] = struct{}{}
	}
	for _, rec := range remote {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		rec.Source = models.SourceRemote
		merged = append(merged, rec)
	}

	models.SortByActivity(merged)
	return merged
}

// decodeProjectID reverses the backend's project path encoding, dropping
// the cloud marker prefix when present.
func decodeProjectID(projectID string) string {
	id := strings.TrimPrefix(projectID, "cloud-")
	if !strings.HasPrefix(id, "-") {
		return id
	}
	return "/" + strings.ReplaceAll(id[1:], "-", "/")
}

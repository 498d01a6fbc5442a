package track

import (
	"sort"
	"sync"
	"time"

	"github.com/quarev/browserd/idgen"
	"github.com/quarev/browserd/internal/engine"
)

type session struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	status  SessionStatus
	tabs    map[string]struct{}
	history []NavigationEvent
	bctx    engine.Context
}

type tab struct {
	id        string
	sessionID string
	createdAt time.Time

	mu         sync.Mutex
	url        string
	title      string
	lastActive time.Time
	loading    bool
	pinned     bool
	groupID    string
	state      NavState
	cursor     int // index into session history, -1 before the first load
	page       engine.Page
	removed    bool
}

// Store tracks live sessions and tabs. Create one per service instance and
// pass it explicitly to collaborators.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	tabs     map[string]*tab

	newSessionID idgen.Generator
	newTabID     idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithSessionIDGenerator overrides the session id strategy.
func WithSessionIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newSessionID = gen }
}

// WithTabIDGenerator overrides the tab id strategy.
func WithTabIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newTabID = gen }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[string]*session),
		tabs:         make(map[string]*tab),
		newSessionID: idgen.Prefixed("sess_", idgen.Default),
		newTabID:     idgen.Prefixed("tab_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateSession registers a session owning the given engine context. An
// empty clientID allocates a fresh id; a supplied id must not collide with
// a live session.
func (s *Store) CreateSession(clientID string, bctx engine.Context) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := clientID
	if id == "" {
		id = s.newSessionID()
	} else if _, ok := s.sessions[id]; ok {
		return SessionInfo{}, ErrSessionExists
	}

	sess := &session{
		id:        id,
		createdAt: time.Now(),
		status:    SessionActive,
		tabs:      make(map[string]struct{}),
		bctx:      bctx,
	}
	s.sessions[id] = sess
	return sess.snapshot(), nil
}

// GetSession returns a snapshot of a live session.
func (s *Store) GetSession(id string) (SessionInfo, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked(), nil
}

// ListSessions returns snapshots of every live session, oldest first.
func (s *Store) ListSessions() []SessionInfo {
	s.mu.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(all))
	for _, sess := range all {
		infos = append(infos, sess.snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// SessionIDs returns the ids of every live session.
func (s *Store) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionContext returns the engine context of an Active session, for
// opening new pages. Closing/Closed sessions report not found, so no tab
// can be created inside a session that is being torn down.
func (s *Store) SessionContext(id string) (engine.Context, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != SessionActive {
		return nil, ErrSessionNotFound
	}
	return sess.bctx, nil
}

// SessionHistory returns a copy of the session's navigation history.
func (s *Store) SessionHistory(id string) ([]NavigationEvent, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]NavigationEvent, len(sess.history))
	copy(out, sess.history)
	return out, nil
}

// CreateTab registers a tab owning the given engine page inside an Active
// session. The caller creates the page outside any store lock; if the
// session went away in between, the caller must close the page itself.
func (s *Store) CreateTab(sessionID string, page engine.Page) (TabInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return TabInfo{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != SessionActive {
		return TabInfo{}, ErrSessionNotFound
	}

	now := time.Now()
	t := &tab{
		id:         s.newTabID(),
		sessionID:  sessionID,
		createdAt:  now,
		lastActive: now,
		state:      NavIdle,
		cursor:     -1,
		page:       page,
	}
	s.tabs[t.id] = t
	sess.tabs[t.id] = struct{}{}
	return t.snapshot(0), nil
}

// GetTab returns a snapshot of a live tab.
func (s *Store) GetTab(id string) (TabInfo, error) {
	s.mu.RLock()
	t, ok := s.tabs[id]
	var sess *session
	if ok {
		sess = s.sessions[t.sessionID]
	}
	s.mu.RUnlock()
	if !ok {
		return TabInfo{}, ErrTabNotFound
	}

	count := 0
	if sess != nil {
		sess.mu.Lock()
		for _, ev := range sess.history {
			if ev.TabID == id {
				count++
			}
		}
		sess.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return TabInfo{}, ErrTabNotFound
	}
	return t.snapshotLocked(count), nil
}

// Page returns the engine page handle of a live tab and touches its
// last-active timestamp.
func (s *Store) Page(id string) (engine.Page, error) {
	s.mu.RLock()
	t, ok := s.tabs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTabNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return nil, ErrTabNotFound
	}
	t.lastActive = time.Now()
	return t.page, nil
}

// UpdateTab sets the pinned flag and/or group id of a live tab.
func (s *Store) UpdateTab(id string, pinned *bool, groupID *string) (TabInfo, error) {
	s.mu.RLock()
	t, ok := s.tabs[id]
	s.mu.RUnlock()
	if !ok {
		return TabInfo{}, ErrTabNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return TabInfo{}, ErrTabNotFound
	}
	if pinned != nil {
		t.pinned = *pinned
	}
	if groupID != nil {
		t.groupID = *groupID
	}
	return t.snapshotLocked(0), nil
}

// RemoveTab deregisters a tab and returns its page handle so the caller can
// close it. After RemoveTab returns, any in-flight navigation completion
// for this tab is dropped: no callback mutates a removed entry.
func (s *Store) RemoveTab(id string) (engine.Page, error) {
	s.mu.Lock()
	t, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrTabNotFound
	}
	delete(s.tabs, id)
	sess := s.sessions[t.sessionID]
	s.mu.Unlock()

	if sess != nil {
		sess.mu.Lock()
		delete(sess.tabs, id)
		sess.mu.Unlock()
	}

	t.mu.Lock()
	t.removed = true
	page := t.page
	t.mu.Unlock()
	return page, nil
}

// MarkClosing transitions a session to Closing and returns its member tab
// ids and engine context for teardown. Unknown ids are an error on this
// direct path; bulk cleanup tolerates it.
func (s *Store) MarkClosing(id string) ([]string, engine.Context, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.status = SessionClosing
	ids := make([]string, 0, len(sess.tabs))
	for tid := range sess.tabs {
		ids = append(ids, tid)
	}
	sort.Strings(ids)
	return ids, sess.bctx, nil
}

// RemoveSession marks a session Closed and deregisters it. The registries
// never retain stale references: this succeeds even when engine-side
// teardown partially failed.
func (s *Store) RemoveSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		sess.mu.Lock()
		sess.status = SessionClosed
		sess.mu.Unlock()
	}
}

// Counts reports live session and tab totals.
func (s *Store) Counts() (sessions, tabs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), len(s.tabs)
}

func (sess *session) snapshot() SessionInfo {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked()
}

func (sess *session) snapshotLocked() SessionInfo {
	ids := make([]string, 0, len(sess.tabs))
	for id := range sess.tabs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return SessionInfo{
		ID:         sess.id,
		CreatedAt:  sess.createdAt,
		Status:     sess.status,
		TabIDs:     ids,
		HistoryLen: len(sess.history),
	}
}

func (t *tab) snapshot(historyLen int) TabInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(historyLen)
}

func (t *tab) snapshotLocked(historyLen int) TabInfo {
	return TabInfo{
		ID:         t.id,
		SessionID:  t.sessionID,
		URL:        t.url,
		Title:      t.title,
		CreatedAt:  t.createdAt,
		LastActive: t.lastActive,
		Loading:    t.loading,
		Pinned:     t.pinned,
		GroupID:    t.groupID,
		State:      t.state,
		HistoryLen: historyLen,
	}
}
